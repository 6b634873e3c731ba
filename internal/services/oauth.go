package services

import (
	"fmt"
	"net/url"

	"github.com/desertthunder/imgx/internal/session"
	"github.com/desertthunder/imgx/internal/shared"
	"golang.org/x/oauth2"
)

// OAuthConfig builds the provider URLs for the authorization code redirect.
type OAuthConfig struct {
	config         oauth2.Config
	domain         string
	audience       string
	logoutRedirect string
}

// NewOAuthConfig validates c and prepares the oauth2 configuration.
func NewOAuthConfig(c shared.OAuthConfig) (*OAuthConfig, error) {
	if c.Domain == "" || c.ClientID == "" {
		return nil, fmt.Errorf("%w: oauth.domain and oauth.client_id are required", shared.ErrMissingConfig)
	}
	if c.RedirectURI == "" {
		return nil, fmt.Errorf("%w: oauth.redirect_uri is required", shared.ErrMissingConfig)
	}

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	return &OAuthConfig{
		config: oauth2.Config{
			ClientID:    c.ClientID,
			RedirectURL: c.RedirectURI,
			Scopes:      scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://" + c.Domain + "/authorize",
				TokenURL: "https://" + c.Domain + "/oauth/token",
			},
		},
		domain:         c.Domain,
		audience:       c.Audience,
		logoutRedirect: c.LogoutRedirectURI,
	}, nil
}

// connection maps a login method to the provider connection to preselect.
func connection(method session.LoginMethod) string {
	if method == session.LoginGoogle {
		return "google-oauth2"
	}
	return ""
}

// AuthURL returns the authorization URL carrying the encoded state.
func (o *OAuthConfig) AuthURL(state session.StatePayload, method session.LoginMethod) string {
	var opts []oauth2.AuthCodeOption
	if o.audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", o.audience))
	}
	if c := connection(method); c != "" {
		opts = append(opts, oauth2.SetAuthURLParam("connection", c))
	}
	return o.config.AuthCodeURL(session.EncodeState(state), opts...)
}

// LogoutURL returns the provider's logout endpoint.
func (o *OAuthConfig) LogoutURL() string {
	q := url.Values{"client_id": {o.config.ClientID}}
	if o.logoutRedirect != "" {
		q.Set("returnTo", o.logoutRedirect)
	}
	return "https://" + o.domain + "/v2/logout?" + q.Encode()
}

// RedirectURL is where the provider sends the browser back to.
func (o *OAuthConfig) RedirectURL() string {
	return o.config.RedirectURL
}
