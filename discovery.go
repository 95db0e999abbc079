package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// Invite is one dashboard invitation summary.
type Invite struct {
	Title string
	URL   string
	Meta  []string
}

// Discoverer reads the invitation list off the dashboard. An empty dashboard
// is a normal outcome; only a present-but-unreadable list is an error.
type Discoverer struct {
	config *Config
	log    *zap.SugaredLogger
	diag   *Diagnostics
}

func NewDiscoverer(config *Config, log *zap.SugaredLogger, diag *Diagnostics) *Discoverer {
	return &Discoverer{config: config, log: log, diag: diag}
}

// Discover navigates to the invites page and returns the invite summaries in
// dashboard order. The empty-vs-broken distinction works like this: after a
// bounded wait times out, a non-waiting probe re-checks the container. Truly
// absent means an empty dashboard (valid result, diagnostic snapshot for the
// record); present means the wait itself is broken (selector drift), and
// that propagates as *DiscoveryError.
func (d *Discoverer) Discover(page *rod.Page) ([]Invite, error) {
	t := d.config.Timeouts
	sel := d.config.Selectors.Dashboard

	d.log.Info("scanning for project invites")

	if err := page.Timeout(t.Navigation()).Navigate(d.config.InvitesURL); err != nil {
		return nil, &DiscoveryError{Selector: d.config.InvitesURL, Err: err}
	}
	if err := page.Timeout(t.Navigation()).WaitLoad(); err != nil {
		return nil, &DiscoveryError{Selector: d.config.InvitesURL, Err: err}
	}

	_, matched, waitErr := findFirst(page, t.InviteList(), sel.InviteList)
	if waitErr != nil {
		if err := classifyListTimeout(waitErr, existsNow(page, sel.InviteList), sel.InviteList); err != nil {
			return nil, err
		}
		d.log.Info("no available invites found")
		d.diag.Capture(page, "discovery-empty", nil)
		return nil, nil
	}
	d.log.Debugw("invite list present", "selector", matched)

	html, err := page.HTML()
	if err != nil {
		return nil, &DiscoveryError{Selector: matched, Err: err}
	}

	invites, err := parseInvites(html, sel, d.config.BaseURL)
	if err != nil {
		return nil, &DiscoveryError{Selector: sel.InviteItem, Err: err}
	}

	d.log.Infow("invites discovered", "count", len(invites))
	return invites, nil
}

// classifyListTimeout decides what an invite-list wait timeout means. A
// container that is truly absent is an empty dashboard, a valid result; a
// container that is present while the wait still timed out means selector
// drift, which surfaces as *DiscoveryError. Pure function of its inputs.
func classifyListTimeout(waitErr error, containerPresent bool, candidates []string) error {
	if !containerPresent {
		return nil
	}
	return &DiscoveryError{
		Selector: strings.Join(candidates, " | "),
		Err:      waitErr,
	}
}

// parseInvites extracts invite entries from a dashboard HTML snapshot.
// Separated from the browser so the extraction is testable against captured
// markup.
func parseInvites(html string, sel DashboardSelectors, baseURL string) ([]Invite, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dashboard html: %w", err)
	}

	var invites []Invite
	doc.Find(sel.InviteItem).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(sel.InviteTitle).First().Text())
		href, _ := item.Find(sel.InviteLink).First().Attr("href")

		var meta []string
		item.Find(sel.InviteMeta).Each(func(_ int, m *goquery.Selection) {
			if text := strings.TrimSpace(m.Text()); text != "" {
				meta = append(meta, text)
			}
		})

		if title == "" && href == "" {
			return
		}

		invites = append(invites, Invite{
			Title: title,
			URL:   absoluteURL(baseURL, href),
			Meta:  meta,
		})
	})

	return invites, nil
}

func absoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(u).String()
}
