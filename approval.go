package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"
)

// Reviewer drives the human approval step: list everything awaiting review,
// ask per project, and record the decision.
type Reviewer struct {
	store *ProjectStore
	log   *zap.SugaredLogger
	in    io.Reader
	out   io.Writer
	now   func() time.Time
}

func NewReviewer(store *ProjectStore, log *zap.SugaredLogger) *Reviewer {
	return &Reviewer{
		store: store,
		log:   log,
		in:    os.Stdin,
		out:   os.Stdout,
		now:   time.Now,
	}
}

// Review renders the pending-approval queue and walks it interactively.
// Default answer is no: only an explicit "y" approves.
func (r *Reviewer) Review() error {
	pending, err := r.store.ListProjectsByStatus(StatusPendingApproval)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(r.out, "Nothing awaiting approval.")
		return nil
	}

	r.renderQueue(pending)

	reader := bufio.NewReader(r.in)
	approved, rejected := 0, 0

	for _, p := range pending {
		fmt.Fprintf(r.out, "\nApprove %q (%s)? Listen first: %s\n[y/N] ", p.Title, p.ID, p.AudioURL)

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read answer: %w", err)
		}

		decision := StatusRejected
		if strings.EqualFold(strings.TrimSpace(line), "y") {
			decision = StatusApproved
		}

		if err := r.store.UpdateProject(p.ID, map[string]string{
			"Status":      string(decision),
			"Reviewed At": r.now().Format(time.RFC3339),
		}); err != nil {
			return err
		}

		if decision == StatusApproved {
			approved++
		} else {
			rejected++
		}
		r.log.Infow("review recorded", "id", p.ID, "decision", decision)

		if err == io.EOF {
			break
		}
	}

	fmt.Fprintf(r.out, "\nReview done: %d approved, %d rejected.\n", approved, rejected)
	return nil
}

func (r *Reviewer) renderQueue(pending []ProjectSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Audio", "Project URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Project URL", WidthMax: 60},
	})
	for _, p := range pending {
		t.AppendRow(table.Row{p.ID, p.Title, p.AudioFileName, p.URL})
	}
	t.Render()
}

// ListApproved prints the approved queue and names the next project the
// upload batch would take first.
func (r *Reviewer) ListApproved() error {
	approved, err := r.store.ListProjectsByStatus(StatusApproved)
	if err != nil {
		return err
	}
	if len(approved) == 0 {
		fmt.Fprintln(r.out, "No approved projects waiting for upload.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Audio", "Project URL"})
	for _, p := range approved {
		t.AppendRow(table.Row{p.ID, p.Title, p.AudioFileName, p.URL})
	}
	t.Render()

	next := approved[0]
	fmt.Fprintf(r.out, "\nNext up: %s (%s)\n", next.ID, next.Title)
	return nil
}

// UploadBatch submits approved projects' audio, one browser session for the
// whole batch. A non-empty onlyID narrows the batch to that single project.
// Each project lands in Uploaded or Upload Failed; one failure never stops
// the rest.
func UploadBatch(ctx context.Context, config *Config, env *Env, log *zap.SugaredLogger, store *ProjectStore, blob *BlobStore, uploader *Uploader, onlyID string) error {
	approved, err := store.ListProjectsByStatus(StatusApproved)
	if err != nil {
		return err
	}
	if onlyID != "" {
		var match []ProjectSummary
		for _, p := range approved {
			if p.ID == onlyID {
				match = append(match, p)
			}
		}
		if len(match) == 0 {
			return fmt.Errorf("project %s: not approved or %w", onlyID, ErrNotFound)
		}
		approved = match
	}
	if len(approved) == 0 {
		fmt.Println("No approved projects to upload.")
		return nil
	}

	session := NewSession(config, env, log)
	if err := session.Connect(); err != nil {
		return err
	}
	defer session.Close()

	uploaded, failed := 0, 0
	for _, p := range approved {
		err := uploadOne(ctx, store, blob, uploader, session, config.TempDir, p)
		if err != nil {
			failed++
			log.Errorw("upload failed", "id", p.ID, "title", p.Title, "error", err)
			continue
		}
		uploaded++
	}

	fmt.Printf("Uploads finished: %d succeeded, %d failed.\n", uploaded, failed)
	return nil
}

func uploadOne(ctx context.Context, store *ProjectStore, blob *BlobStore, uploader *Uploader, session *Session, tempDir string, p ProjectSummary) error {
	if p.AudioURL == "" {
		if err := markUploadFailed(store, p.ID, "no audio recorded for project"); err != nil {
			return err
		}
		return fmt.Errorf("project %s has no audio url", p.ID)
	}

	localPath, err := blob.Fetch(ctx, p.AudioURL, tempDir)
	if err != nil {
		if uErr := markUploadFailed(store, p.ID, err.Error()); uErr != nil {
			return uErr
		}
		return err
	}
	defer os.Remove(localPath)

	if err := uploader.UploadAudio(ctx, session, p.URL, localPath); err != nil {
		if uErr := markUploadFailed(store, p.ID, err.Error()); uErr != nil {
			return uErr
		}
		return err
	}

	return store.UpdateProject(p.ID, map[string]string{
		"Status":      string(StatusUploaded),
		"Uploaded At": time.Now().Format(time.RFC3339),
		"Notes":       "",
	})
}

func markUploadFailed(store *ProjectStore, id, reason string) error {
	return store.UpdateProject(id, map[string]string{
		"Status": string(StatusUploadFailed),
		"Notes":  truncateNote(reason, 200),
	})
}
