package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/imgx/internal/server"
	"github.com/desertthunder/imgx/internal/services"
	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/ui"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in with a username and password.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	username, password := cmd.String("username"), cmd.String("password")
	if password == "" {
		return fmt.Errorf("%w: --password or IMGX_PASSWORD", shared.ErrMissingArgument)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	res, err := r.svc.Auth.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return r.establish(ctx, res)
}

// AuthRegister creates an account and signs in with it.
func (r *Runner) AuthRegister(ctx context.Context, cmd *cli.Command) error {
	req := services.RegisterRequest{
		Username: cmd.String("username"),
		Password: cmd.String("password"),
		Email:    cmd.String("email"),
		Name:     cmd.String("name"),
	}
	if req.Password == "" {
		return fmt.Errorf("%w: --password or IMGX_PASSWORD", shared.ErrMissingArgument)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	res, err := r.svc.Auth.Register(ctx, req)
	if err != nil {
		return err
	}
	return r.establish(ctx, res)
}

func (r *Runner) establish(ctx context.Context, res *services.AuthResult) error {
	if err := r.sessions.Establish(ctx, res.Session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	r.saveUser(ctx, res.Session, res.Membership)
	return r.writePlain("%s\n", ui.Styles.OK("Signed in as %s", res.Session.Username))
}

// AuthOAuth runs the authorization code flow through a local callback listener.
func (r *Runner) AuthOAuth(ctx context.Context, cmd *cli.Command) error {
	oauth, err := services.NewOAuthConfig(r.config.OAuth)
	if err != nil {
		return err
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	method := loginMethod(cmd)
	state := session.NewState(cmd.String("return-url"))
	handler := server.NewCallbackHandler(r.bootstrapper(ctx, method), state.Nonce, r.config.OAuth.CallbackPath, r.logger)
	srv := server.NewCallbackServer(r.config.OAuth.ListenAddr, handler, r.logger)
	if err := srv.Start(); err != nil {
		return err
	}

	authURL := oauth.AuthURL(state, method)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for sign-in...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser automatically", "err", err)
			r.writePlain("%s\n", ui.Styles.Warn("Could not open browser automatically."))
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := srv.Wait(waitCtx)
	if err != nil {
		return err
	}
	return r.reportResolution(result.Resolution, result.Err)
}

// AuthCallback completes sign-in from a redirect URL copied out of the browser.
func (r *Runner) AuthCallback(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("url")
	if raw == "" {
		return fmt.Errorf("%w: callback URL", shared.ErrMissingArgument)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	res, err := r.bootstrapper(ctx, loginMethod(cmd)).Resolve(ctx, u.Query())
	return r.reportResolution(res, err)
}

// loginMethod is the connection named by the --google flag.
func loginMethod(cmd *cli.Command) session.LoginMethod {
	if cmd.Bool("google") {
		return session.LoginGoogle
	}
	return session.LoginAuth0
}

func (r *Runner) reportResolution(res session.Resolution, err error) error {
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	switch res.Outcome {
	case session.OutcomeEstablished:
		r.writePlain("%s\n", ui.Styles.OK("Signed in as %s via %s", res.Session.Username, res.Session.LoginMethod))
		r.writePlain("%s\n", ui.Styles.Field("Return to", res.ReturnURL))
		return nil
	case session.OutcomeDuplicate:
		r.writePlain("%s\n", ui.Styles.Warn("This authorization was already used or is being processed elsewhere."))
		return nil
	case session.OutcomeDenied:
		return fmt.Errorf("%w: %s", shared.ErrAuthorizationDenied, res.Reason)
	case session.OutcomeHydrated:
		r.writePlain("%s\n", ui.Styles.OK("Already signed in as %s", res.Session.Username))
		return nil
	default:
		return fmt.Errorf("%w: no code or state in callback URL", shared.ErrMissingAuthParams)
	}
}

type statusView struct {
	Authenticated bool       `json:"authenticated"`
	Username      string     `json:"username,omitempty"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	Method        string     `json:"loginMethod,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Plan          string     `json:"plan"`
	Remaining     int        `json:"remainingToday"`
}

// AuthStatus shows the stored session without contacting the backend.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	s := r.currentSession(ctx)
	m := r.membershipFor(ctx, s)
	view := statusView{Plan: string(m.Tier), Remaining: m.Remaining()}
	if s != nil {
		view.Authenticated = true
		view.Username = s.Username
		view.Email = s.EmailAddress
		view.Name = s.DisplayName
		view.Method = string(s.LoginMethod)
		view.ExpiresAt = s.ExpiresAt
		if view.ExpiresAt == nil {
			if exp, ok := session.CredentialExpiry(s.Credential); ok {
				view.ExpiresAt = &exp
			}
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}

	if !view.Authenticated {
		r.writePlain("%s\n", ui.Styles.Warn("Not signed in"))
		r.writePlain("%s\n", ui.Styles.Field("Plan", fmt.Sprintf("%s (%d left today)", view.Plan, view.Remaining)))
		return nil
	}

	r.writePlain("%s\n", ui.Styles.OK("Signed in"))
	r.writePlain("%s\n", ui.Styles.Field("Username", view.Username))
	if view.Name != "" && view.Name != view.Username {
		r.writePlain("%s\n", ui.Styles.Field("Name", view.Name))
	}
	if view.Email != "" {
		r.writePlain("%s\n", ui.Styles.Field("Email", view.Email))
	}
	r.writePlain("%s\n", ui.Styles.Field("Method", view.Method))
	if view.ExpiresAt != nil {
		r.writePlain("%s\n", ui.Styles.Field("Expires", view.ExpiresAt.Local().Format(time.DateTime)))
	}
	r.writePlain("%s\n", ui.Styles.Field("Plan", fmt.Sprintf("%s (%d left today)", view.Plan, view.Remaining)))
	return nil
}

// AuthRefresh re-fetches the profile, keeping the current credential.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	current := r.currentSession(ctx)
	if current == nil {
		return shared.ErrNotAuthenticated
	}

	updated, membership, err := r.svc.Auth.RefreshSession(ctx, current)
	if err != nil {
		return err
	}
	if err := r.sessions.Establish(ctx, updated); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	r.saveUser(ctx, updated, membership)

	return r.writePlain("%s\n", ui.Styles.OK("Profile refreshed for %s", updated.Username))
}

// AuthLogout tells the backend, then clears the session, guards and user record.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	current := r.currentSession(ctx)
	if err := r.bootstrapper(ctx, session.LoginAuth0).Logout(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	if err := r.users.Delete(ctx); err != nil {
		r.logger.Warn("failed to clear user record", "err", err)
	}

	r.writePlain("%s\n", ui.Styles.OK("Signed out"))
	if current != nil && current.LoginMethod != session.LoginPassword {
		if oauth, err := services.NewOAuthConfig(r.config.OAuth); err == nil {
			r.writePlain("To end the provider session too, visit:\n%s\n", oauth.LogoutURL())
		}
	}
	return nil
}
