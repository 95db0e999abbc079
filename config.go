package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything tunable about a run: browser knobs, the per-stage
// timeout budgets, and the versioned selector map. Secrets never live here;
// they come from the environment (see env.go).
type Config struct {
	BaseURL    string `yaml:"base_url"`
	SigninURL  string `yaml:"signin_url"`
	InvitesURL string `yaml:"invites_url"`

	Headless           bool   `yaml:"headless"`
	BrowserProfilePath string `yaml:"browser_profile_path"`
	ViewportWidth      int    `yaml:"viewport_width"`
	ViewportHeight     int    `yaml:"viewport_height"`

	ErrorDir string `yaml:"error_dir"`
	TempDir  string `yaml:"temp_dir"`

	// Courtesy delay between invite pages; the portal UI is fragile and
	// sequential processing keeps it stable.
	InviteDelaySeconds int `yaml:"invite_delay_seconds"`

	UploadRetries      int     `yaml:"upload_retries"`
	RetryBaseDelayMs   int     `yaml:"retry_base_delay_ms"`
	RetryBackoffFactor float64 `yaml:"retry_backoff_factor"`

	Timeouts  TimeoutConfig  `yaml:"timeouts"`
	Selectors SelectorConfig `yaml:"selectors"`

	DebugMode bool `yaml:"debug_mode"`
}

// TimeoutConfig is the single table of named timeout budgets. Stages must not
// invent their own numbers.
type TimeoutConfig struct {
	NavigationSeconds     int `yaml:"navigation_seconds"`
	LoginStepSeconds      int `yaml:"login_step_seconds"`
	SecondLoginSeconds    int `yaml:"second_login_seconds"`
	InviteListSeconds     int `yaml:"invite_list_seconds"`
	FieldSeconds          int `yaml:"field_seconds"`
	FileInputSeconds      int `yaml:"file_input_seconds"`
	AcceptBannerSeconds   int `yaml:"accept_banner_seconds"`
	OutcomeSignalSeconds  int `yaml:"outcome_signal_seconds"`
	OutcomeOverallSeconds int `yaml:"outcome_overall_seconds"`
}

func (t TimeoutConfig) Navigation() time.Duration     { return secs(t.NavigationSeconds) }
func (t TimeoutConfig) LoginStep() time.Duration      { return secs(t.LoginStepSeconds) }
func (t TimeoutConfig) SecondLogin() time.Duration    { return secs(t.SecondLoginSeconds) }
func (t TimeoutConfig) InviteList() time.Duration     { return secs(t.InviteListSeconds) }
func (t TimeoutConfig) Field() time.Duration          { return secs(t.FieldSeconds) }
func (t TimeoutConfig) FileInput() time.Duration      { return secs(t.FileInputSeconds) }
func (t TimeoutConfig) AcceptBanner() time.Duration   { return secs(t.AcceptBannerSeconds) }
func (t TimeoutConfig) OutcomeSignal() time.Duration  { return secs(t.OutcomeSignalSeconds) }
func (t TimeoutConfig) OutcomeOverall() time.Duration { return secs(t.OutcomeOverallSeconds) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }

// DashboardSelectors locates the invite list and its per-item parts.
type DashboardSelectors struct {
	InviteList  []string `yaml:"invite_list"`
	InviteItem  string   `yaml:"invite_item"`
	InviteTitle string   `yaml:"invite_title"`
	InviteLink  string   `yaml:"invite_link"`
	InviteMeta  string   `yaml:"invite_meta"`
}

// SelectorConfig is the declarative selector map for every DOM touchpoint.
// Each entry is an ordered candidate list tried first-to-last; the portal's
// markup drifts between deployments, so single selectors are a liability.
// The version tag travels with saved configs so stale maps are visible in
// diagnostics.
type SelectorConfig struct {
	Version string `yaml:"version"`

	Login struct {
		Email          []string `yaml:"email"`
		Continue       []string `yaml:"continue"`
		PasswordMode   []string `yaml:"password_mode"`
		Password       []string `yaml:"password"`
		PasswordSubmit []string `yaml:"password_submit"`
	} `yaml:"login"`

	Dashboard DashboardSelectors `yaml:"dashboard"`

	Project struct {
		Script      []string `yaml:"script"`
		Description []string `yaml:"description"`
		ClientID    []string `yaml:"client_id"`
		Attachment  []string `yaml:"attachment"`
	} `yaml:"project"`

	Upload struct {
		AcceptBanner    []string `yaml:"accept_banner"`
		AcceptButton    []string `yaml:"accept_button"`
		FileInput       []string `yaml:"file_input"`
		DropZone        []string `yaml:"drop_zone"`
		BudgetLabel     []string `yaml:"budget_label"`
		PriceField      []string `yaml:"price_field"`
		ProposalField   []string `yaml:"proposal_field"`
		SubmitButton    []string `yaml:"submit_button"`
		SuccessMarker   []string `yaml:"success_marker"`
		ValidationError []string `yaml:"validation_error"`
		UploadBox       []string `yaml:"upload_box"`
	} `yaml:"upload"`
}

func DefaultConfig() *Config {
	cfg := &Config{
		BaseURL:    "https://voice123.com",
		SigninURL:  "https://accounts.voice123.com/signin/",
		InvitesURL: "https://voice123.com/dashboard/invites",

		Headless:       true,
		ViewportWidth:  1280,
		ViewportHeight: 800,

		ErrorDir: "errors",
		TempDir:  "tmp_audio",

		InviteDelaySeconds: 2,

		UploadRetries:      3,
		RetryBaseDelayMs:   1000,
		RetryBackoffFactor: 2,

		Timeouts: TimeoutConfig{
			NavigationSeconds:     15,
			LoginStepSeconds:      15,
			SecondLoginSeconds:    5,
			InviteListSeconds:     10,
			FieldSeconds:          5,
			FileInputSeconds:      15,
			AcceptBannerSeconds:   10,
			OutcomeSignalSeconds:  15,
			OutcomeOverallSeconds: 30,
		},
	}

	s := &cfg.Selectors
	s.Version = "2025-08"

	s.Login.Email = []string{`input[type="email"]`, `input[name="email"]`, `#email`}
	s.Login.Continue = []string{`button[type="submit"]`}
	s.Login.PasswordMode = []string{
		`.mdl-button--accent[href="/login/"]`,
		`button[data-testid="login-magic-link"]`,
	}
	s.Login.Password = []string{`input[type="password"]`, `input[name="password"]`, `#password`}
	s.Login.PasswordSubmit = []string{`button[type="submit"]`, `[data-testid="login-submit-button"]`}

	s.Dashboard.InviteList = []string{`ul.md-list.md-theme`, `ul.md-list`}
	s.Dashboard.InviteItem = `li.vdl-invite-list-item`
	s.Dashboard.InviteTitle = `.item-title`
	s.Dashboard.InviteLink = `a.md-list-item-container`
	s.Dashboard.InviteMeta = `.item-info:not(.small-icon)`

	s.Project.Script = []string{
		`#custom_sample_info .content.clickable span`,
		`.audition-script pre`,
		`.audition-script textarea`,
	}
	s.Project.Description = []string{`.project-description`, `.field-value-text`}
	s.Project.ClientID = []string{`.client-id`, `.client-info .name`}
	s.Project.Attachment = []string{`.attachment-list a`, `a[download]`}

	s.Upload.AcceptBanner = []string{`.invite-banner`, `.accept-invite-banner`}
	s.Upload.AcceptButton = []string{`.invite-banner button`, `button.accept-invite`}
	s.Upload.FileInput = []string{`input[type="file"]`, `.upload-box input[type="file"]`}
	s.Upload.DropZone = []string{`.upload-box`, `.dropzone`, `.file-drop-area`}
	s.Upload.BudgetLabel = []string{`.budget-label`, `#project_budget`, `#budget`}
	s.Upload.PriceField = []string{
		`input[name="price_quote"]`, `input[name="component_value"]`,
		`input[name="price"]`, `input[name="amount"]`, `input[type="number"]`,
	}
	s.Upload.ProposalField = []string{
		`textarea[name="proposal_details"]`, `textarea#details`,
		`textarea[name="details"]`, `textarea[name="proposal"]`,
	}
	s.Upload.SubmitButton = []string{`button[type="submit"].submit-proposal`, `button[type="submit"]`}
	s.Upload.SuccessMarker = []string{`.upload-success`, `.proposal-sent`, `.md-snackbar--success`}
	s.Upload.ValidationError = []string{`.upload-error`, `.md-input-invalid`, `.error-message`}
	s.Upload.UploadBox = []string{`.upload-box`}

	return cfg
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects configs with empty selector candidate lists up front,
// rather than failing mid-run with a cryptic wait timeout.
func (c *Config) Validate() error {
	var missing []string

	check := func(name string, candidates []string) {
		if len(candidates) == 0 {
			missing = append(missing, name)
			return
		}
		for _, sel := range candidates {
			if strings.TrimSpace(sel) == "" {
				missing = append(missing, name)
				return
			}
		}
	}

	s := c.Selectors
	check("login.email", s.Login.Email)
	check("login.continue", s.Login.Continue)
	check("login.password_mode", s.Login.PasswordMode)
	check("login.password", s.Login.Password)
	check("login.password_submit", s.Login.PasswordSubmit)
	check("dashboard.invite_list", s.Dashboard.InviteList)
	check("project.script", s.Project.Script)
	check("project.description", s.Project.Description)
	check("project.client_id", s.Project.ClientID)
	check("project.attachment", s.Project.Attachment)
	check("upload.file_input", s.Upload.FileInput)
	check("upload.drop_zone", s.Upload.DropZone)
	check("upload.budget_label", s.Upload.BudgetLabel)
	check("upload.price_field", s.Upload.PriceField)
	check("upload.proposal_field", s.Upload.ProposalField)
	check("upload.submit_button", s.Upload.SubmitButton)
	check("upload.success_marker", s.Upload.SuccessMarker)
	check("upload.validation_error", s.Upload.ValidationError)

	if len(missing) > 0 {
		return fmt.Errorf("selector config %s has empty entries: %s",
			s.Version, strings.Join(missing, ", "))
	}

	if c.Timeouts.NavigationSeconds <= 0 || c.Timeouts.LoginStepSeconds <= 0 {
		return fmt.Errorf("timeout budgets must be positive")
	}

	return nil
}

// ApplySelectorOverrides prepends operator-supplied selectors from the
// environment so a markup hotfix does not require editing the shipped config.
// Each override becomes the first candidate for its touchpoint.
func (c *Config) ApplySelectorOverrides(env *Env) {
	prepend := func(list *[]string, override string) {
		if override != "" {
			*list = append([]string{override}, *list...)
		}
	}

	prepend(&c.Selectors.Project.Script, env.ScriptSelector)
	prepend(&c.Selectors.Project.Description, env.DescriptionSelector)
	prepend(&c.Selectors.Project.ClientID, env.ClientSelector)
	prepend(&c.Selectors.Project.Attachment, env.AttachmentSelector)
	prepend(&c.Selectors.Upload.AcceptButton, env.AcceptBtnSelector)
	prepend(&c.Selectors.Upload.FileInput, env.FileInputSelector)
	prepend(&c.Selectors.Upload.SubmitButton, env.SubmitButtonSelector)
	prepend(&c.Selectors.Upload.SuccessMarker, env.UploadSuccessSelector)
}
