package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

const probeInterval = 200 * time.Millisecond

// findFirst polls the ordered candidate list until one selector matches or
// the budget runs out. Returns the element and the selector that matched.
func findFirst(page *rod.Page, timeout time.Duration, candidates []string) (*rod.Element, string, error) {
	deadline := time.Now().Add(timeout)

	for {
		for _, sel := range candidates {
			has, el, err := page.Has(sel)
			if err != nil {
				continue
			}
			if has {
				return el, sel, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, "", fmt.Errorf("no candidate matched within %s: %s",
				timeout, strings.Join(candidates, " | "))
		}
		time.Sleep(probeInterval)
	}
}

// findFirstVisible is findFirst restricted to elements actually rendered.
func findFirstVisible(page *rod.Page, timeout time.Duration, candidates []string) (*rod.Element, string, error) {
	deadline := time.Now().Add(timeout)

	for {
		for _, sel := range candidates {
			has, el, err := page.Has(sel)
			if err != nil || !has {
				continue
			}
			visible, err := el.Visible()
			if err == nil && visible {
				return el, sel, nil
			}
		}
		if time.Now().After(deadline) {
			return nil, "", fmt.Errorf("no visible candidate within %s: %s",
				timeout, strings.Join(candidates, " | "))
		}
		time.Sleep(probeInterval)
	}
}

// existsNow is a non-waiting probe, used to distinguish "not there" from
// "there but the wait timed out".
func existsNow(page *rod.Page, candidates []string) bool {
	for _, sel := range candidates {
		has, _, err := page.Has(sel)
		if err == nil && has {
			return true
		}
	}
	return false
}

// safeText extracts trimmed text for the first matching candidate, returning
// the fallback on any failure. One broken selector must never abort the
// extraction of the other fields.
func safeText(page *rod.Page, timeout time.Duration, candidates []string, fallback string) string {
	el, _, err := findFirst(page, timeout, candidates)
	if err != nil {
		return fallback
	}
	text, err := el.Text()
	if err != nil {
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	return text
}

// clickInPage dispatches a real DOM click from within the page context so
// the frontend framework's own listeners fire; the automation layer's
// synthetic click sometimes does not register with them.
func clickInPage(el *rod.Element) error {
	_, err := el.Eval(`() => this.click()`)
	return err
}

// clickByText scans all interactive elements for a text match and clicks the
// first hit inside the page. exact=false compares case-insensitively on
// substring. Returns whether anything was clicked.
func clickByText(page *rod.Page, text string, exact bool) (bool, error) {
	res, err := page.Eval(`(text, exact) => {
		const elements = document.querySelectorAll(
			'button, input[type="button"], input[type="submit"], a'
		);
		for (const el of elements) {
			const label = (el.textContent || el.value || '').trim();
			const hit = exact
				? label === text
				: label.toLowerCase().includes(text.toLowerCase());
			if (hit) {
				el.click();
				return true;
			}
		}
		return false;
	}`, text, exact)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// dispatchEvents re-fires bubbling DOM events on an element. Client
// frameworks often react only to these, not to CDP-level mutations.
func dispatchEvents(el *rod.Element, names ...string) error {
	_, err := el.Eval(`(names) => {
		for (const n of names) {
			this.dispatchEvent(new Event(n, { bubbles: true }));
		}
	}`, names)
	return err
}
