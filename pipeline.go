package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Pipeline wires discovery, extraction, synthesis, and storage into the
// unattended run: login, walk the invite list, and leave every discovered
// project either awaiting approval or flagged for a human.
type Pipeline struct {
	config     *Config
	env        *Env
	log        *zap.SugaredLogger
	store      *ProjectStore
	blob       *BlobStore
	synth      *Synthesizer
	auth       *Authenticator
	discoverer *Discoverer
	extractor  *Extractor
	diag       *Diagnostics
}

func NewPipeline(config *Config, env *Env, log *zap.SugaredLogger, store *ProjectStore, blob *BlobStore, synth *Synthesizer, diag *Diagnostics) *Pipeline {
	return &Pipeline{
		config:     config,
		env:        env,
		log:        log,
		store:      store,
		blob:       blob,
		synth:      synth,
		auth:       NewAuthenticator(config, env, log),
		discoverer: NewDiscoverer(config, log, diag),
		extractor:  NewExtractor(config, log),
		diag:       diag,
	}
}

type runSummary struct {
	discovered int
	skipped    int
	ready      int
	review     int
	failed     int
}

// Run executes one full discovery pass. Per-invite failures are isolated:
// the project row records the error and the loop moves on. Each invite is
// processed in a fresh page, closed before the next begins; the session's
// cookies keep the login valid across pages.
func (p *Pipeline) Run(ctx context.Context, session *Session) error {
	invites, err := p.discover(session)
	if err != nil {
		return err
	}
	if len(invites) == 0 {
		fmt.Println("No project invitations found.")
		return nil
	}

	summary := runSummary{discovered: len(invites)}
	delay := time.Duration(p.config.InviteDelaySeconds) * time.Second

	for i, invite := range invites {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		seen, err := p.store.HasProjectURL(invite.URL)
		if err != nil {
			return err
		}
		if seen {
			p.log.Debugw("invite already tracked, skipping", "url", invite.URL)
			summary.skipped++
			continue
		}

		status, err := p.processInvite(ctx, session, invite)
		switch {
		case err != nil:
			summary.failed++
			p.log.Errorw("invite processing failed", "title", invite.Title, "error", err)
		case status == StatusPendingApproval:
			summary.ready++
		case status == StatusNeedsReview:
			summary.review++
		}
	}

	fmt.Printf("Processed %d invitations: %d awaiting approval, %d need manual review, %d skipped, %d failed.\n",
		summary.discovered, summary.ready, summary.review, summary.skipped, summary.failed)
	return nil
}

// discover logs in and reads the invite list, all on one page that is
// closed before the per-invite loop starts.
func (p *Pipeline) discover(session *Session) ([]Invite, error) {
	page, err := session.NewPage()
	if err != nil {
		return nil, err
	}
	defer closePage(page, p.log)

	logs := AttachLogBuffers(page, p.log)

	if err := p.auth.Login(page); err != nil {
		p.diag.CaptureError(page, "login", logs, err)
		return nil, err
	}

	return p.discoverer.Discover(page)
}

// processInvite extracts one project, persists it, and (when the script is
// usable) generates and stores its audio. The returned status is the row's
// final state.
func (p *Pipeline) processInvite(ctx context.Context, session *Session, invite Invite) (Status, error) {
	page, err := session.NewPage()
	if err != nil {
		return "", err
	}
	defer closePage(page, p.log)

	logs := AttachLogBuffers(page, p.log)

	details, err := p.extractor.Extract(page, invite.URL)
	if err != nil {
		p.diag.CaptureError(page, "extract", logs, err)
		return "", err
	}

	status := classifyProject(details.HasAttachment, details.Script)
	project := &Project{
		Title:       invite.Title,
		URL:         invite.URL,
		Deadline:    DeadlineFromMeta(invite.Meta),
		Script:      details.Script,
		Description: details.Description,
		ClientID:    details.ClientID,
		Status:      status,
	}
	if status == StatusNeedsReview {
		if details.HasAttachment {
			// No usable inline script; the store writes the placeholder.
			project.Script = ""
			project.Notes = "Script attached as file, needs manual extraction"
		} else {
			project.Notes = "Extracted script too short to trust"
		}
	}

	id, err := p.store.CreateProject(project)
	if err != nil {
		return "", err
	}
	p.log.Infow("project recorded", "id", id, "title", invite.Title, "status", status)

	if status != StatusProcessing {
		return status, nil
	}

	if err := p.generateAudio(ctx, id, details.Script); err != nil {
		note := truncateNote(err.Error(), 100)
		if uErr := p.store.UpdateProject(id, map[string]string{
			"Status": string(StatusError),
			"Notes":  note,
		}); uErr != nil {
			p.log.Errorw("failed to record audio error", "id", id, "error", uErr)
		}
		return StatusError, err
	}

	return StatusPendingApproval, nil
}

func (p *Pipeline) generateAudio(ctx context.Context, id, script string) error {
	localPath, err := p.synth.Synthesize(ctx, id, script)
	if err != nil {
		return err
	}

	audioURL, err := p.blob.Put(ctx, localPath)
	if err != nil {
		return err
	}
	if rmErr := os.Remove(localPath); rmErr != nil {
		p.log.Warnw("temp audio cleanup failed", "path", localPath, "error", rmErr)
	}

	return p.store.UpdateProject(id, map[string]string{
		"Status":         string(StatusPendingApproval),
		"Audio File URL": audioURL,
	})
}
