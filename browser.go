package main

import (
	"fmt"
	"net/url"
	"runtime"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// Session owns one browser for the duration of a workflow. The stage that
// holds it has exclusive use; pages are closed before the session, and the
// session is closed on every exit path.
type Session struct {
	config   *Config
	env      *Env
	log      *zap.SugaredLogger
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func NewSession(config *Config, env *Env, log *zap.SugaredLogger) *Session {
	return &Session{config: config, env: env, log: log}
}

// Connect acquires the browser: a remote browserless session when an API key
// is configured, otherwise a locally launched Chrome/Chromium.
func (s *Session) Connect() error {
	if s.env.BrowserlessAPIKey != "" {
		return s.connectRemote()
	}
	return s.launchLocal()
}

func (s *Session) connectRemote() error {
	args := []string{
		"--disable-features=site-per-process",
		"--no-sandbox",
		"--disable-setuid-sandbox",
	}
	wsURL := fmt.Sprintf("wss://chrome.browserless.io?token=%s&launch=%s",
		s.env.BrowserlessAPIKey, url.QueryEscape(fmt.Sprint(args)))

	s.log.Debug("connecting to remote browser session")

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to remote browser: %w", err)
	}
	s.browser = browser
	return nil
}

func (s *Session) launchLocal() error {
	// Leakless deadlocks on Windows, see go-rod/rod#853.
	useLeakless := runtime.GOOS != "windows"

	l := launcher.New().
		Leakless(useLeakless).
		Headless(s.config.Headless)

	if s.config.BrowserProfilePath != "" {
		l = l.UserDataDir(s.config.BrowserProfilePath)
	}

	if chromePath, ok := launcher.LookPath(); ok {
		l = l.Bin(chromePath)
		s.log.Debugw("using system browser", "path", chromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	s.launcher = l
	s.browser = browser
	return nil
}

// NewPage opens a stealth page with the configured viewport. Callers own the
// returned page and must close it before the session.
func (s *Session) NewPage() (*rod.Page, error) {
	if s.browser == nil {
		return nil, fmt.Errorf("browser session not connected")
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.config.ViewportWidth,
		Height:            s.config.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return page, nil
}

// Close tears the session down. Safe to call on a partially initialized
// session; intended for defer.
func (s *Session) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.log.Debugw("browser close failed", "error", err)
		}
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
}

// closePage is the shared page teardown used in deferred blocks; a failed
// close is logged and never masks the stage's own error.
func closePage(page *rod.Page, log *zap.SugaredLogger) {
	if page == nil {
		return
	}
	if err := page.Close(); err != nil {
		log.Debugw("page close failed", "error", err)
	}
}
