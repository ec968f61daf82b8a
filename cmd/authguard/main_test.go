package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/authtest"
	"github.com/MrEthical07/authguard/session"
)

const routesYAML = `landing: /dashboard
routes:
  - path: /login
    guest_only: true
  - path: /dashboard
    requires_auth: true
    redirect_on_fail: /login
  - path: /docs/*
`

type harness struct {
	clock   *authtest.Clock
	auth    *authtest.Authenticator
	persist *session.MemoryPersistence
	routes  string
	stderr  *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := authtest.NewClock(time.Now())
	auth := authtest.NewAuthenticator(clock, time.Hour)
	auth.AddUser("ada", "secret", session.Identity{ID: "u-ada", Name: "Ada", Roles: []string{"admin"}})

	routes := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(routes, []byte(routesYAML), 0o600))

	return &harness{
		clock:   clock,
		auth:    auth,
		persist: session.NewMemoryPersistence(),
		routes:  routes,
		stderr:  new(bytes.Buffer),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		AuthenticatorFactory: func(cliConfig) (authguard.Authenticator, error) { return h.auth, nil },
		PersistenceFactory: func(context.Context, cliConfig) (session.Persistence, func() error, error) {
			return h.persist, func() error { return nil }, nil
		},
		Clock: h.clock,
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd(h.deps())
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(h.stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args,
		"--session-backend", "memory",
		"--token-method", "hs256",
		"--token-secret", string(authtest.Secret),
		"--routes", h.routes,
	))

	err := cmd.Execute()
	return out.String(), err
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	out, err := h.run(t, "secret\n", "login", "-u", "ada", "--password-stdin")
	require.NoError(t, err)
	require.Contains(t, out, "signed in as Ada <u-ada>")
}

func TestRoot_Help(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"login", "logout", "status", "refresh", "check", "routes"} {
		assert.Contains(t, output, sub)
	}
	for _, flag := range []string{"--config", "--auth-url", "--session-backend", "--routes"} {
		assert.Contains(t, output, flag)
	}
}

func TestLoginThenStatus(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "", "status", "--json")
	require.NoError(t, err)

	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "authenticated", status.Status)
	assert.Equal(t, "u-ada", status.UserID)
	assert.Equal(t, []string{"admin"}, status.Roles)
	require.NotNil(t, status.ExpiresAt)
	assert.WithinDuration(t, h.clock.Now().Add(time.Hour), *status.ExpiresAt, time.Second)
}

func TestStatus_Text(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "anonymous")

	h.login(t)
	out, err = h.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticated")
	assert.Contains(t, out, "Ada <u-ada>")
	assert.Contains(t, out, "admin")
}

func TestLoginWithPasswordFlag(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "login", "-u", "ada", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in")
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "wrong\n", "login", "-u", "ada", "--password-stdin")
	require.Error(t, err)
	assert.ErrorIs(t, err, authguard.ErrInvalidCredentials)

	rec, err := h.persist.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLoginRequiresPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "login", "-u", "ada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password required")

	verify, _ := h.auth.Calls()
	assert.Zero(t, verify)
}

func TestLoginWhenAlreadySignedIn(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.run(t, "secret\n", "login", "-u", "ada", "--password-stdin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already signed in")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out Ada <u-ada>")

	rec, err := h.persist.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)

	out, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "refresh")
	assert.ErrorIs(t, err, authguard.ErrNotAuthenticated)

	h.login(t)
	h.clock.Advance(10 * time.Minute)

	out, err := h.run(t, "", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "token renewed")

	_, renew := h.auth.Calls()
	assert.Equal(t, 1, renew)
}

func TestRefreshRejected(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.auth.FailRenew(authguard.ErrTokenExpired)

	_, err := h.run(t, "", "refresh")
	assert.ErrorIs(t, err, errSessionExpired)
}

func TestCheck(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		path string
		want string
	}{
		{path: "/dashboard", want: "redirect /login (return_to=/dashboard)"},
		{path: "/login", want: "allow /login"},
		{path: "/docs/intro", want: "allow /docs/intro"},
		{path: "/missing", want: "not_found /missing"},
	}
	for _, tt := range tests {
		out, err := h.run(t, "", "check", tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, strings.TrimSpace(out), tt.path)
	}

	h.login(t)

	out, err := h.run(t, "", "check", "/dashboard?tab=1")
	require.NoError(t, err)
	assert.Equal(t, "allow /dashboard", strings.TrimSpace(out))

	out, err = h.run(t, "", "check", "/login")
	require.NoError(t, err)
	assert.Equal(t, "redirect /dashboard", strings.TrimSpace(out))
}

func TestCheckRequiresPath(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "check")
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "routes")
	require.NoError(t, err)
	assert.Contains(t, out, "landing: /dashboard")
	assert.Regexp(t, `/login\s+guest\s+-`, out)
	assert.Regexp(t, `/dashboard\s+auth\s+/login`, out)
	assert.Regexp(t, `/docs/\*\s+public`, out)
}

func TestExpiredSessionHydratesAnonymous(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.clock.Advance(2 * time.Hour)

	out, err := h.run(t, "", "status", "--json")
	require.NoError(t, err)

	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "anonymous", status.Status)
}
