package main

import (
	"strings"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// MinScriptLength is the shortest brief text considered usable for
// synthesis; anything shorter is pinned to manual review.
const MinScriptLength = 50

const (
	fallbackDescription = "No description"
	fallbackClientID    = "No client ID"
)

// ProjectDetails is the structured record pulled off one invite page.
type ProjectDetails struct {
	Script        string
	Description   string
	ClientID      string
	HasAttachment bool
}

// Extractor pulls structured fields from a project detail page. Every field
// resolves independently with a fallback, so one broken selector degrades a
// single field instead of aborting the extraction.
type Extractor struct {
	config *Config
	log    *zap.SugaredLogger
}

func NewExtractor(config *Config, log *zap.SugaredLogger) *Extractor {
	return &Extractor{config: config, log: log}
}

// Extract navigates to the invite URL and reads the detail fields.
func (e *Extractor) Extract(page *rod.Page, inviteURL string) (*ProjectDetails, error) {
	t := e.config.Timeouts
	sel := e.config.Selectors.Project

	if err := page.Timeout(t.Navigation()).Navigate(inviteURL); err != nil {
		return nil, err
	}
	if err := page.Timeout(t.Navigation()).WaitLoad(); err != nil {
		return nil, err
	}

	details := &ProjectDetails{
		Script:        safeText(page, t.Field(), sel.Script, ""),
		Description:   safeText(page, t.Field(), sel.Description, fallbackDescription),
		ClientID:      safeText(page, t.Field(), sel.ClientID, fallbackClientID),
		HasAttachment: existsNow(page, sel.Attachment),
	}

	e.log.Debugw("extracted project details",
		"scriptLen", len(details.Script),
		"hasAttachment", details.HasAttachment,
	)

	return details, nil
}

// classifyProject decides the initial status for an extracted project.
// Attachments force manual review regardless of the script; otherwise the
// script must exist and clear the minimum length to auto-advance.
// Pure function of its inputs.
func classifyProject(hasAttachment bool, script string) Status {
	if hasAttachment {
		return StatusNeedsReview
	}
	if len(strings.TrimSpace(script)) < MinScriptLength {
		return StatusNeedsReview
	}
	return StatusProcessing
}
