package session

import (
	"context"
	"net/http"

	"github.com/jrsteele09/as2-portal-session/authapi"
	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource hands out the session's access token for calls to other portal
// APIs, refreshing first when it has expired.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	current := ts.m.Current()
	if !current.Authenticated() {
		return nil, &authapi.Error{Kind: authapi.KindNotAuthenticated}
	}

	if !current.ExpiresAt.IsZero() && !ts.m.clock.Now().Before(current.ExpiresAt) {
		refreshed, err := ts.m.Refresh(ts.ctx)
		if err != nil {
			return nil, err
		}
		current = refreshed
	}

	return &oauth2.Token{
		AccessToken:  current.AccessToken,
		TokenType:    authapi.TokenTypeBearer,
		RefreshToken: current.RefreshToken,
		Expiry:       current.ExpiresAt,
	}, nil
}

// HTTPClient returns a client that sets the session's bearer token on every
// request. The token is read from the session per request, so the client
// follows rotations and stops authenticating after logout.
func (m *Manager) HTTPClient(ctx context.Context) *http.Client {
	base := http.DefaultTransport
	if hc, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && hc != nil && hc.Transport != nil {
		base = hc.Transport
	}
	return &http.Client{Transport: &oauth2.Transport{Source: m.TokenSource(ctx), Base: base}}
}
