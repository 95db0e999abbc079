package main

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Authenticator drives the identity provider's login ceremony. The provider
// alternates between passwordless and password flows and changes its markup
// between deployments, so every touchpoint resolves through a candidate
// selector list.
type Authenticator struct {
	config *Config
	env    *Env
	log    *zap.SugaredLogger
}

func NewAuthenticator(config *Config, env *Env, log *zap.SugaredLogger) *Authenticator {
	return &Authenticator{config: config, env: env, log: log}
}

// Login takes the page from the sign-in URL to a logged-in dashboard state
// or fails with *AuthError. The second "Log in" confirmation click is
// sometimes not rendered at all; its absence is not a failure.
func (a *Authenticator) Login(page *rod.Page) error {
	t := a.config.Timeouts
	sel := a.config.Selectors.Login

	a.log.Info("starting authentication")

	if err := page.Timeout(t.Navigation()).Navigate(a.config.SigninURL); err != nil {
		return &AuthError{Step: "navigate", Err: err}
	}
	if err := page.Timeout(t.Navigation()).WaitLoad(); err != nil {
		return &AuthError{Step: "navigate", Err: err}
	}

	// Email, then continue.
	emailInput, _, err := findFirstVisible(page, t.LoginStep(), sel.Email)
	if err != nil {
		return &AuthError{Step: "email", Err: err}
	}
	if err := emailInput.Input(a.env.PortalEmail); err != nil {
		return &AuthError{Step: "email", Err: err}
	}
	a.log.Debug("entered email")

	if err := a.clickAndSettle(page, sel.Continue); err != nil {
		return &AuthError{Step: "email continue", Err: err}
	}

	// The site may land on a passwordless (magic link) screen; switch to
	// the password flow. Candidate selectors first, text scan as fallback.
	if err := a.switchToPasswordMode(page); err != nil {
		return &AuthError{Step: "password mode", Err: err}
	}

	passwordInput, _, err := findFirstVisible(page, t.LoginStep(), sel.Password)
	if err != nil {
		return &AuthError{Step: "password", Err: err}
	}
	if err := passwordInput.Input(a.env.PortalPassword); err != nil {
		return &AuthError{Step: "password", Err: err}
	}
	a.log.Debug("entered password")

	if err := a.clickAndSettle(page, sel.PasswordSubmit); err != nil {
		return &AuthError{Step: "password submit", Err: err}
	}

	// A second confirmation click is sometimes required. Scan every
	// interactive element for the exact text "Log in"; swallow timeouts.
	a.secondLoginClick(page)

	a.log.Info("authentication complete")
	return nil
}

func (a *Authenticator) switchToPasswordMode(page *rod.Page) error {
	t := a.config.Timeouts

	el, matched, err := findFirstVisible(page, t.LoginStep(), a.config.Selectors.Login.PasswordMode)
	if err == nil {
		a.log.Debugw("found password-mode control", "selector", matched)
		wait := page.Timeout(t.LoginStep()).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
		if err := clickInPage(el); err != nil {
			return err
		}
		wait()
		return nil
	}

	// Selector drift: fall back to text matching.
	clicked, clickErr := clickByText(page, "type your password", false)
	if clickErr != nil || !clicked {
		return fmt.Errorf("password-mode control not found: %w", err)
	}
	a.log.Debug("switched to password mode via text match")
	return nil
}

func (a *Authenticator) clickAndSettle(page *rod.Page, candidates []string) error {
	d := a.config.Timeouts.LoginStep()

	el, _, err := findFirstVisible(page, d, candidates)
	if err != nil {
		return err
	}

	wait := page.Timeout(d).WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := clickInPage(el); err != nil {
		return err
	}
	wait()
	return nil
}

func (a *Authenticator) secondLoginClick(page *rod.Page) {
	t := a.config.Timeouts

	done := make(chan struct{})
	wait := page.Timeout(t.SecondLogin()).WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	go func() {
		wait()
		close(done)
	}()

	clicked, err := clickByText(page, "Log in", true)
	if err != nil || !clicked {
		a.log.Debug("no second login button present, continuing")
		return
	}

	<-done
	a.log.Debug("second login click handled")
}
