package main

import (
	"errors"
	"strings"
	"testing"
)

const dashboardFixture = `
<html><body>
<ul class="md-list md-theme">
  <li class="vdl-invite-list-item">
    <a class="md-list-item-container" href="/project/1001">
      <div class="item-title">Commercial voice over, 30s spot</div>
      <div class="item-info">2 days remaining</div>
      <div class="item-info">English (US)</div>
      <div class="item-info small-icon">icon</div>
    </a>
  </li>
  <li class="vdl-invite-list-item">
    <a class="md-list-item-container" href="https://voice123.com/project/1002">
      <div class="item-title">Audiobook narration sample</div>
      <div class="item-info">$250-500</div>
    </a>
  </li>
  <li class="vdl-invite-list-item">
    <!-- skeleton placeholder row, no title or link -->
  </li>
</ul>
</body></html>`

func TestParseInvites(t *testing.T) {
	sel := DefaultConfig().Selectors.Dashboard

	invites, err := parseInvites(dashboardFixture, sel, "https://voice123.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invites) != 2 {
		t.Fatalf("expected 2 invites, got %d", len(invites))
	}

	first := invites[0]
	if first.Title != "Commercial voice over, 30s spot" {
		t.Errorf("unexpected title: %q", first.Title)
	}
	if first.URL != "https://voice123.com/project/1001" {
		t.Errorf("relative href not resolved: %q", first.URL)
	}
	if len(first.Meta) != 3 {
		t.Fatalf("expected 3 meta tags, got %v", first.Meta)
	}
	if first.Meta[0] != "2 days remaining" {
		t.Errorf("unexpected first meta tag: %q", first.Meta[0])
	}
	if DeadlineFromMeta(first.Meta) != "2 days remaining" {
		t.Errorf("deadline not extracted from meta: %v", first.Meta)
	}

	second := invites[1]
	if second.URL != "https://voice123.com/project/1002" {
		t.Errorf("absolute href should pass through unchanged: %q", second.URL)
	}
	if DeadlineFromMeta(second.Meta) != NoDeadline {
		t.Errorf("expected no deadline for %v", second.Meta)
	}
}

func TestParseInvitesEmpty(t *testing.T) {
	sel := DefaultConfig().Selectors.Dashboard

	invites, err := parseInvites(`<html><body><ul class="md-list"></ul></body></html>`, sel, "https://voice123.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(invites) != 0 {
		t.Errorf("expected no invites, got %d", len(invites))
	}
}

func TestClassifyListTimeout(t *testing.T) {
	waitErr := errors.New("no candidate matched within 10s")
	candidates := []string{`ul.md-list.md-theme`, `ul.md-list`}

	t.Run("absent container is an empty dashboard", func(t *testing.T) {
		if err := classifyListTimeout(waitErr, false, candidates); err != nil {
			t.Errorf("expected nil for an absent container, got %v", err)
		}
	})

	t.Run("present container is selector drift", func(t *testing.T) {
		err := classifyListTimeout(waitErr, true, candidates)

		var discErr *DiscoveryError
		if !errors.As(err, &discErr) {
			t.Fatalf("expected *DiscoveryError, got %v", err)
		}
		if !errors.Is(err, waitErr) {
			t.Error("wait timeout not reachable through Unwrap")
		}
		if !strings.Contains(discErr.Selector, "ul.md-list") {
			t.Errorf("error should name the candidates tried: %q", discErr.Selector)
		}
	})
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{"relative path", "https://voice123.com", "/project/5", "https://voice123.com/project/5"},
		{"absolute href untouched", "https://voice123.com", "https://cdn.example.com/x", "https://cdn.example.com/x"},
		{"empty href", "https://voice123.com", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := absoluteURL(tt.base, tt.href); got != tt.want {
				t.Errorf("absoluteURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
			}
		})
	}
}
