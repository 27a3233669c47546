package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/as2-portal-session/auth"
	"github.com/jrsteele09/as2-portal-session/authapi"
	"github.com/jrsteele09/as2-portal-session/internal/config"
	"github.com/jrsteele09/as2-portal-session/server"
	"github.com/jrsteele09/as2-portal-session/token"
	"github.com/jrsteele09/as2-portal-session/token/keys"
	refreshrepofake "github.com/jrsteele09/as2-portal-session/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/as2-portal-session/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	backend   *httptest.Server
	tokenFile string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("BASE_URL", "")
	t.Setenv("ADMIN_PASSWORD", "Admin-Passw0rd")
	t.Setenv("LOGIN_RATE_LIMIT", "0")
	cfg := config.New()

	kp, err := keys.GenerateRSAKeyPair("test-key", 2048)
	require.NoError(t, err)
	tokens := token.New(refreshrepofake.NewFakeRefreshTokenRepo(), keys.NewKeyPairSigner(kp), cfg)
	authService, err := auth.NewService(auth.Repos{Users: fakeuserrepo.NewFakeUserRepo()}, tokens, cfg)
	require.NoError(t, err)
	s, err := server.New(cfg, authService, server.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)

	f := &testFixture{
		backend:   httptest.NewServer(s),
		tokenFile: filepath.Join(t.TempDir(), "session.json"),
	}
	t.Cleanup(f.backend.Close)
	return f
}

// portalctl runs one command with stdin as the password source.
func (f *testFixture) portalctl(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	global := []string{"--api-url", f.backend.URL, "--storage", "file", "--token-file", f.tokenFile, "--verify"}
	err := run(context.Background(), append(global, args...), strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestLoginWhoAmIRefreshLogout(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.portalctl(t, "Sup3r-secret!\n", "register", "robin@acme-edi.example", "--name", "Robin Reviewer", "--organization", "Acme EDI")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered Robin Reviewer <robin@acme-edi.example> (viewer)")

	out, err = f.portalctl(t, "Sup3r-secret!\n", "login", "robin@acme-edi.example")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Robin Reviewer")
	assert.FileExists(t, f.tokenFile)

	out, err = f.portalctl(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"email": "robin@acme-edi.example"`)

	out, err = f.portalctl(t, "", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Refreshed, access token expires")

	out, err = f.portalctl(t, "", "get", "/auth/me")
	require.NoError(t, err)
	assert.Contains(t, out, "robin@acme-edi.example")

	_, err = f.portalctl(t, "", "logout")
	require.NoError(t, err)
	_, statErr := os.Stat(f.tokenFile)
	assert.True(t, os.IsNotExist(statErr))

	_, err = f.portalctl(t, "", "whoami")
	assert.ErrorContains(t, err, "not logged in")
}

func TestLoginWithWrongPassword(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.portalctl(t, "nope\n", "login", "admin@as2portal.local")
	require.Error(t, err)
	_, statErr := os.Stat(f.tokenFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRegisterFlagsDoNotCarryOver(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.portalctl(t, "Sup3r-secret!\n", "register", "first@acme-edi.example", "--name", "First User")
	require.NoError(t, err)

	_, err = f.portalctl(t, "Sup3r-secret!\n", "register", "second@acme-edi.example")
	require.Error(t, err)
	assert.Contains(t, authapi.FieldsOf(err), "name")
}

func TestUnknownCommand(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.portalctl(t, "", "frobnicate")
	assert.ErrorContains(t, err, `unknown command "frobnicate"`)
}
