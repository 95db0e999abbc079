package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const maxUploadBytes = 100 << 20 // 100MB portal limit

// defaultQuoteAmount fills the price field on "looking for a quote"
// projects when no explicit amount applies.
const defaultQuoteAmount = "100"

var allowedUploadExts = map[string]bool{
	".mp3": true,
	".wav": true,
}

// errFormatRejected marks an explicit validation-error outcome, which is the
// only failure that justifies the one-shot WAV→MP3 retry.
var errFormatRejected = fmt.Errorf("portal rejected the uploaded format")

// Uploader runs the submission state machine for one approved project:
// validate → (transcode) → authenticate → navigate → accept invite → locate
// input → attach → verify → fill budget fields → submit → detect outcome.
type Uploader struct {
	config     *Config
	env        *Env
	log        *zap.SugaredLogger
	auth       *Authenticator
	diag       *Diagnostics
	transcoder *Transcoder

	// submitOnce and toFormat are swappable in tests.
	submitOnce func(context.Context, *rod.Page, *uploadAttempt) error
	toFormat   func(context.Context, string, string) (string, error)
}

func NewUploader(config *Config, env *Env, log *zap.SugaredLogger, auth *Authenticator, diag *Diagnostics, transcoder *Transcoder) *Uploader {
	u := &Uploader{
		config:     config,
		env:        env,
		log:        log,
		auth:       auth,
		diag:       diag,
		transcoder: transcoder,
	}
	u.submitOnce = u.attachAndSubmit
	u.toFormat = transcoder.ToFormat
	return u
}

// uploadAttempt tracks one submission try. It lives for a single UploadAudio
// call; temp files it creates are deleted in the call's cleanup block.
type uploadAttempt struct {
	filePath  string
	format    string
	logs      *PageLogs
	tempFiles []string
}

func (a *uploadAttempt) useFile(path string) {
	a.filePath = path
	a.format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// UploadAudio submits one audio file to one project's proposal form. On any
// failure diagnostics are captured before the error is returned. The browser
// session, page, and temp files are released on every exit path.
func (u *Uploader) UploadAudio(ctx context.Context, session *Session, projectURL, audioPath string) (err error) {
	// Validating: nothing touches the network before this passes.
	if err := validateAudioFile(audioPath); err != nil {
		return err
	}

	attempt := &uploadAttempt{}
	attempt.useFile(audioPath)

	defer func() {
		for _, f := range attempt.tempFiles {
			if rmErr := os.Remove(f); rmErr != nil && !os.IsNotExist(rmErr) {
				u.log.Warnw("temp file cleanup failed", "path", f, "error", rmErr)
			}
		}
	}()

	// Transcoding is best-effort: total failure means we continue with the
	// original file.
	if u.transcoder.Available() {
		if normalized, tErr := u.transcoder.Normalize(ctx, audioPath); tErr == nil {
			attempt.tempFiles = append(attempt.tempFiles, normalized)
			attempt.useFile(normalized)
			u.log.Debugw("using normalized audio", "path", normalized)
		} else {
			u.log.Warnw("transcode failed, continuing with original", "error", tErr)
		}
	}

	page, err := session.NewPage()
	if err != nil {
		return err
	}
	defer closePage(page, u.log)

	attempt.logs = AttachLogBuffers(page, u.log)

	defer func() {
		if err != nil {
			u.diag.CaptureError(page, "upload", attempt.logs, err)
		}
	}()

	// Authenticating.
	if err = u.auth.Login(page); err != nil {
		return err
	}

	// Navigating.
	u.log.Infow("navigating to project page", "url", projectURL)
	if err = page.Timeout(u.config.Timeouts.Navigation()).Navigate(projectURL); err != nil {
		return fmt.Errorf("failed to open project page: %w", err)
	}
	if err = page.Timeout(u.config.Timeouts.Navigation()).WaitLoad(); err != nil {
		return fmt.Errorf("project page did not load: %w", err)
	}
	if _, _, err = findFirst(page, u.config.Timeouts.FileInput(), u.config.Selectors.Upload.UploadBox); err != nil {
		return fmt.Errorf("upload area not present: %w", err)
	}

	// AcceptingInvite: non-fatal, later steps re-check enablement.
	u.acceptInviteIfPresent(page)

	if err = u.submitWithFormatRetry(ctx, page, attempt); err != nil {
		return err
	}

	u.log.Info("proposal submitted and confirmed")
	return nil
}

// submitWithFormatRetry runs one submission attempt. When the portal
// explicitly rejects a WAV (not a generic timeout), it transcodes to mp3 and
// repeats the attempt exactly once; any second rejection is final.
func (u *Uploader) submitWithFormatRetry(ctx context.Context, page *rod.Page, attempt *uploadAttempt) error {
	err := u.submitOnce(ctx, page, attempt)
	if err == errFormatRejected && attempt.format == "wav" {
		u.log.Info("wav rejected by portal, retrying once as mp3")
		mp3Path, tErr := u.toFormat(ctx, attempt.filePath, "mp3")
		if tErr != nil {
			return fmt.Errorf("%w (mp3 fallback transcode failed: %v)", ErrSubmissionUnconfirmed, tErr)
		}
		attempt.tempFiles = append(attempt.tempFiles, mp3Path)
		attempt.useFile(mp3Path)
		err = u.submitOnce(ctx, page, attempt)
	}
	if err == errFormatRejected {
		err = fmt.Errorf("%w: explicit validation error", ErrSubmissionUnconfirmed)
	}
	return err
}

// attachAndSubmit runs Attach → Verify → FillBudgetFields → Submit →
// DetectOutcome once.
func (u *Uploader) attachAndSubmit(ctx context.Context, page *rod.Page, attempt *uploadAttempt) error {
	if err := u.attachFile(page, attempt); err != nil {
		return err
	}

	if err := u.fillBudgetFields(page); err != nil {
		// Budget fields are not rendered for every project layout.
		u.log.Warnw("budget fields could not be filled", "error", err)
	}

	if err := u.clickSubmit(page); err != nil {
		return err
	}

	return u.detectOutcome(ctx, page, attempt.logs)
}

// --- AcceptingInvite ---

// acceptInviteIfPresent clicks the invite banner's accept control from
// within the page context so the frontend's listeners fire, then waits for
// the banner to clear. Everything here is best-effort.
func (u *Uploader) acceptInviteIfPresent(page *rod.Page) {
	sel := u.config.Selectors.Upload
	if !existsNow(page, sel.AcceptBanner) {
		return
	}

	u.log.Info("accepting project invitation")
	btn, _, err := findFirstVisible(page, u.config.Timeouts.AcceptBanner(), sel.AcceptButton)
	if err != nil {
		u.log.Warnw("accept control not found", "error", err)
		return
	}
	if err := clickInPage(btn); err != nil {
		u.log.Warnw("accept click failed", "error", err)
		return
	}

	deadline := time.Now().Add(u.config.Timeouts.AcceptBanner())
	for time.Now().Before(deadline) {
		if !existsNow(page, sel.AcceptBanner) && u.fileInputEnabled(page) {
			u.log.Debug("invite accepted, upload input enabled")
			return
		}
		time.Sleep(probeInterval)
	}
	u.log.Warn("invite banner did not clear, continuing anyway")
}

func (u *Uploader) fileInputEnabled(page *rod.Page) bool {
	res, err := page.Eval(`() => {
		const input = document.querySelector('input[type="file"]');
		return input ? !input.disabled : false;
	}`)
	return err == nil && res.Value.Bool()
}

// --- LocatingFileInput / AttachingFile / VerifyingAttachment ---

// attachFile locates a file input and attaches the audio, falling back to
// progressively blunter instruments: reveal the input by clicking an
// attach/upload affordance, then synthesize a drop event on the best-guess
// drop zone. A nil return means a verified attachment exists.
func (u *Uploader) attachFile(page *rod.Page, attempt *uploadAttempt) error {
	sel := u.config.Selectors.Upload
	t := u.config.Timeouts

	input, err := retryOpValue(defaultRetryOptions(u.config, "locate file input"), func() (*rod.Element, error) {
		el, _, err := findFirst(page, t.FileInput(), sel.FileInput)
		return el, err
	})

	if err != nil {
		// Try to reveal a native input behind an affordance.
		for _, label := range []string{"attach", "upload", "proposal"} {
			if clicked, _ := clickByText(page, label, false); clicked {
				u.log.Debugw("clicked reveal affordance", "label", label)
				break
			}
		}
		input, _, err = findFirst(page, t.Field(), sel.FileInput)
	}

	if err != nil {
		// No native input at all: synthesize a drag-and-drop.
		return u.dropFile(page, attempt)
	}

	if err := input.SetFiles([]string{attempt.filePath}); err != nil {
		return fmt.Errorf("file attach call failed: %w", err)
	}
	// Some client frameworks only react to these, not to the attach call.
	if err := dispatchEvents(input, "input", "change"); err != nil {
		u.log.Debugw("post-attach event dispatch failed", "error", err)
	}

	return u.verifyAttachment(page, input, attempt)
}

// verifyAttachment reads the attached-file count and size back from the
// page. Zero count after the injection fallback is a hard failure; zero size
// with nonzero count triggers the DataTransfer injection once.
func (u *Uploader) verifyAttachment(page *rod.Page, input *rod.Element, attempt *uploadAttempt) error {
	count, size, err := probeAttachment(input)
	if err != nil {
		return fmt.Errorf("attachment probe failed: %w", err)
	}
	u.log.Debugw("attachment probe", "count", count, "size", size)

	if count > 0 && size > 0 {
		return nil
	}

	// The native attach did not register (or registered an empty File).
	// Build the File inside the page from the raw bytes.
	if err := u.injectViaDataTransfer(input, attempt.filePath); err != nil {
		return fmt.Errorf("%w: %v", ErrFileAttachFailed, err)
	}

	count, size, err = probeAttachment(input)
	if err != nil {
		return fmt.Errorf("attachment re-probe failed: %w", err)
	}
	if count == 0 || size == 0 {
		return ErrFileAttachFailed
	}
	u.log.Debug("attachment verified after data-transfer injection")
	return nil
}

func probeAttachment(input *rod.Element) (count, size int, err error) {
	res, err := input.Eval(`() => ({
		count: this.files ? this.files.length : 0,
		size: this.files && this.files.length ? this.files[0].size : 0,
	})`)
	if err != nil {
		return 0, 0, err
	}
	return res.Value.Get("count").Int(), res.Value.Get("size").Int(), nil
}

// injectViaDataTransfer constructs the File inside the page from
// base64-encoded bytes and assigns it through a DataTransfer object, the
// only route that survives controlled file inputs.
func (u *Uploader) injectViaDataTransfer(input *rod.Element, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	_, err = input.Eval(`(name, b64, mime) => {
		const bytes = Uint8Array.from(atob(b64), c => c.charCodeAt(0));
		const file = new File([bytes], name, { type: mime });
		const dt = new DataTransfer();
		dt.items.add(file);
		this.files = dt.files;
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
		return this.files.length;
	}`, filepath.Base(path), base64.StdEncoding.EncodeToString(data), audioMIME(path))
	return err
}

// dropFile dispatches a synthetic drop event carrying the file on the
// best-guess drop-zone container, then verifies some input registered it.
func (u *Uploader) dropFile(page *rod.Page, attempt *uploadAttempt) error {
	zone, matched, err := findFirst(page, u.config.Timeouts.Field(), u.config.Selectors.Upload.DropZone)
	if err != nil {
		return fmt.Errorf("%w: no file input and no drop zone", ErrFileAttachFailed)
	}
	u.log.Infow("no file input found, using drop fallback", "zone", matched)

	data, err := os.ReadFile(attempt.filePath)
	if err != nil {
		return err
	}

	_, err = zone.Eval(`(name, b64, mime) => {
		const bytes = Uint8Array.from(atob(b64), c => c.charCodeAt(0));
		const file = new File([bytes], name, { type: mime });
		const dt = new DataTransfer();
		dt.items.add(file);
		this.dispatchEvent(new DragEvent('dragover', { bubbles: true, cancelable: true, dataTransfer: dt }));
		this.dispatchEvent(new DragEvent('drop', { bubbles: true, cancelable: true, dataTransfer: dt }));
		return true;
	}`, filepath.Base(attempt.filePath), base64.StdEncoding.EncodeToString(data), audioMIME(attempt.filePath))
	if err != nil {
		return fmt.Errorf("%w: drop dispatch failed: %v", ErrFileAttachFailed, err)
	}

	// Give the frontend a beat to materialize the attachment, then probe
	// whatever file input it manages.
	deadline := time.Now().Add(u.config.Timeouts.Field())
	for time.Now().Before(deadline) {
		res, err := page.Eval(`() => {
			const inputs = document.querySelectorAll('input[type="file"]');
			for (const input of inputs) {
				if (input.files && input.files.length && input.files[0].size > 0) {
					return input.files[0].size;
				}
			}
			return 0;
		}`)
		if err == nil && res.Value.Int() > 0 {
			u.log.Debugw("drop fallback verified", "size", res.Value.Int())
			return nil
		}
		time.Sleep(probeInterval)
	}

	return ErrFileAttachFailed
}

// --- FillingBudgetFields ---

type budgetLayout int

const (
	layoutZeroBudget budgetLayout = iota
	layoutQuote
)

// pickBudgetLayout decides which of the two proposal layouts is active from
// the budget label text. Pure function, exercised directly by tests.
func pickBudgetLayout(label string) budgetLayout {
	l := strings.ToLower(label)
	if strings.Contains(l, "quote") {
		return layoutQuote
	}
	if strings.Contains(l, "$0") || strings.TrimSpace(l) == "0" {
		return layoutZeroBudget
	}
	return layoutZeroBudget
}

func (u *Uploader) fillBudgetFields(page *rod.Page) error {
	sel := u.config.Selectors.Upload
	t := u.config.Timeouts

	label := safeText(page, t.Field(), sel.BudgetLabel, "")
	layout := pickBudgetLayout(label)
	u.log.Debugw("budget layout resolved", "label", label, "quote", layout == layoutQuote)

	if layout == layoutQuote {
		price, err := u.findField(page, sel.PriceField, "input", []string{"price", "quote", "amount"})
		if err != nil {
			return fmt.Errorf("price field not found: %w", err)
		}
		if err := setNativeValue(price, defaultQuoteAmount); err != nil {
			return fmt.Errorf("price field set failed: %w", err)
		}
	}

	proposal, err := u.findField(page, sel.ProposalField, "textarea", []string{"proposal", "details", "message"})
	if err != nil {
		return fmt.Errorf("proposal field not found: %w", err)
	}
	return setNativeValue(proposal, "Please find my audition attached. Thank you for the invitation.")
}

// findField resolves a form field through the candidate list, falling back
// to a keyword scan over name/id/placeholder attributes.
func (u *Uploader) findField(page *rod.Page, candidates []string, tag string, keywords []string) (*rod.Element, error) {
	el, _, err := findFirst(page, u.config.Timeouts.Field(), candidates)
	if err == nil {
		return el, nil
	}

	return page.ElementByJS(rod.Eval(`(tag, keywords) => {
		for (const el of document.querySelectorAll(tag)) {
			const hay = ((el.name || '') + ' ' + (el.id || '') + ' ' + (el.placeholder || '')).toLowerCase();
			if (keywords.some(k => hay.includes(k))) return el;
		}
		return null;
	}`, tag, keywords))
}

// setNativeValue writes through the underlying property setter so reactive
// frameworks observe the change, then fires the events they listen for.
func setNativeValue(el *rod.Element, value string) error {
	_, err := el.Eval(`(value) => {
		const proto = this.tagName === 'TEXTAREA'
			? HTMLTextAreaElement.prototype
			: HTMLInputElement.prototype;
		Object.getOwnPropertyDescriptor(proto, 'value').set.call(this, value);
		for (const n of ['input', 'change', 'compositionend']) {
			this.dispatchEvent(new Event(n, { bubbles: true }));
		}
		this.blur();
	}`, value)
	return err
}

// --- Submitting ---

// clickSubmit clicks the submit control without blocking on navigation; the
// form often submits via a background request.
func (u *Uploader) clickSubmit(page *rod.Page) error {
	sel := u.config.Selectors.Upload

	return retryOp(defaultRetryOptions(u.config, "submit click"), func() error {
		btn, _, err := findFirstVisible(page, u.config.Timeouts.Field(), sel.SubmitButton)
		if err != nil {
			return err
		}
		if err := clickInPage(btn); err != nil {
			return err
		}
		u.log.Info("submitted proposal form")
		return nil
	})
}

// --- DetectingOutcome ---

type outcomeKind int

const (
	outcomeSuccessMarker outcomeKind = iota
	outcomeNetworkMatch
	outcomeNavigation
	outcomeContentChange
	outcomeValidationError
)

type outcomeSignal struct {
	kind   outcomeKind
	detail string
}

// detectOutcome races four independent success signals plus the explicit
// validation-error marker; the first to resolve is authoritative. None
// firing within the overall budget means the attempt is unconfirmed.
func (u *Uploader) detectOutcome(ctx context.Context, page *rod.Page, logs *PageLogs) error {
	sel := u.config.Selectors.Upload
	t := u.config.Timeouts

	signals := make(chan outcomeSignal, 8)
	done := make(chan struct{})
	defer close(done)

	pollUntil := func(fn func() (outcomeSignal, bool)) {
		deadline := time.Now().Add(t.OutcomeSignal())
		for time.Now().Before(deadline) {
			if sig, ok := fn(); ok {
				select {
				case signals <- sig:
				case <-done:
				}
				return
			}
			select {
			case <-done:
				return
			case <-time.After(probeInterval):
			}
		}
	}

	// Signal 1: explicit success marker in the DOM. The validation-error
	// marker is watched alongside it since they render in the same region.
	go pollUntil(func() (outcomeSignal, bool) {
		if existsNow(page, sel.ValidationError) {
			return outcomeSignal{kind: outcomeValidationError}, true
		}
		if existsNow(page, sel.SuccessMarker) {
			return outcomeSignal{kind: outcomeSuccessMarker}, true
		}
		return outcomeSignal{}, false
	})

	// Signal 2: a backend response matching the upload-assembly or
	// offer-update patterns.
	go pollUntil(func() (outcomeSignal, bool) {
		for _, entry := range logs.Network() {
			if matchesUploadResponse(entry) {
				return outcomeSignal{kind: outcomeNetworkMatch, detail: entry.URL}, true
			}
		}
		return outcomeSignal{}, false
	})

	// Signal 3: a navigation event. WaitNavigation returns on its deadline
	// too, so only an early return counts.
	go func() {
		start := time.Now()
		page.Timeout(t.OutcomeSignal()).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)()
		if time.Since(start) < t.OutcomeSignal()-time.Second {
			select {
			case signals <- outcomeSignal{kind: outcomeNavigation}:
			case <-done:
			}
		}
	}()

	// Signal 4: the upload UI disappears or a post-submission marker shows
	// up in the page text.
	go pollUntil(func() (outcomeSignal, bool) {
		if !existsNow(page, sel.UploadBox) {
			return outcomeSignal{kind: outcomeContentChange, detail: "upload UI gone"}, true
		}
		res, err := page.Eval(`() => {
			const text = document.body ? document.body.innerText.toLowerCase() : '';
			return text.includes('proposal sent') || text.includes('audition submitted');
		}`)
		if err == nil && res.Value.Bool() {
			return outcomeSignal{kind: outcomeContentChange, detail: "post-submission text"}, true
		}
		return outcomeSignal{}, false
	})

	sig, err := raceOutcome(ctx, signals, t.OutcomeOverall())
	if err != nil {
		return err
	}
	u.log.Infow("submission confirmed", "signal", outcomeName(sig.kind), "detail", sig.detail)
	return nil
}

// raceOutcome resolves the first signal to arrive. A validation-error signal
// maps to errFormatRejected; silence past the overall budget means the
// attempt is unconfirmed.
func raceOutcome(ctx context.Context, signals <-chan outcomeSignal, overall time.Duration) (outcomeSignal, error) {
	select {
	case sig := <-signals:
		if sig.kind == outcomeValidationError {
			return sig, errFormatRejected
		}
		return sig, nil
	case <-ctx.Done():
		return outcomeSignal{}, ctx.Err()
	case <-time.After(overall):
		return outcomeSignal{}, ErrSubmissionUnconfirmed
	}
}

func outcomeName(k outcomeKind) string {
	switch k {
	case outcomeSuccessMarker:
		return "success marker"
	case outcomeNetworkMatch:
		return "network response"
	case outcomeNavigation:
		return "navigation"
	case outcomeContentChange:
		return "content change"
	default:
		return "unknown"
	}
}

// matchesUploadResponse recognizes the backend calls the portal issues when
// a proposal actually lands: the upload-assembly pipeline or an offer
// update, completed with a 2xx, or observed going out as POST/PATCH.
func matchesUploadResponse(e NetworkEntry) bool {
	url := strings.ToLower(e.URL)
	pattern := strings.Contains(url, "assembl") ||
		strings.Contains(url, "upload") ||
		strings.Contains(url, "offer") ||
		strings.Contains(url, "proposal")
	if !pattern {
		return false
	}
	if e.Status >= 200 && e.Status < 300 {
		return true
	}
	method := strings.ToUpper(e.Method)
	return e.Status == 0 && (method == "POST" || method == "PATCH")
}

// --- Validating ---

// validateAudioFile enforces the portal's accepted formats and size limit
// before any browser or network work happens.
func validateAudioFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedUploadExts[ext] {
		return &InvalidFileError{Path: path, Reason: fmt.Sprintf("unsupported extension %q (want .mp3 or .wav)", ext)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return &InvalidFileError{Path: path, Reason: "file not found"}
	}
	if info.Size() > maxUploadBytes {
		return &InvalidFileError{
			Path:   path,
			Reason: fmt.Sprintf("file is %dMB, portal limit is 100MB", info.Size()>>20),
		}
	}
	if info.Size() == 0 {
		return &InvalidFileError{Path: path, Reason: "file is empty"}
	}

	return nil
}

func audioMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}
