package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/receivables-portal/internal/domain/workflow"
	httpapi "github.com/garyjia/receivables-portal/internal/interfaces/http"
)

const testSecret = "cli-test-secret"

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AUTH_JWT_SECRET", testSecret)
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "portal.db"))
	t.Setenv("EXPORTS_DIR", filepath.Join(dir, "exports"))
	t.Setenv("LOGGER_OUTPUT_PATH", "stderr")
	t.Setenv("LOGGER_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides([]string{"0=5", " 2 = 7.5 "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "5", got[0].String())
	assert.Equal(t, "7.5", got[2].String())

	got, err = parseOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"5", "x=1", "1=abc"} {
		_, err := parseOverrides([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestTermsCommand(t *testing.T) {
	dir := setupEnv(t)
	xlsx := filepath.Join(dir, "schedule.xlsx")

	out, err := run(t, "terms", "--principal", "1000", "--quarters", "4", "--start", "2026-Q1", "--rate", "6", "--xlsx", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "Q1 2026")
	assert.Contains(t, out, "Q4 2026")
	assert.Contains(t, out, "1000.00")
	assert.Contains(t, out, "wrote "+xlsx)

	info, err := os.Stat(xlsx)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = run(t, "terms", "--principal=-5", "--start", "2026-Q1")
	assert.Error(t, err)

	_, err = run(t, "terms", "--principal", "100")
	assert.Error(t, err, "start is required")
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "token", "--user", "spv-1", "--role", "SPV")
	require.NoError(t, err)

	actor, err := httpapi.NewTokenManager(testSecret, "receivables-portal", time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "spv-1", actor.UserID)
	assert.Equal(t, workflow.RoleSPV, actor.Role)

	_, err = run(t, "token", "--user", "spv-1", "--role", "pirate")
	assert.Error(t, err)
}

func TestUsersAndTokenFromDirectory(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "users", "add", "--id", "mda-officer", "--role", "mda", "--email", "not-an-email", "--scope", "mda-1")
	assert.Error(t, err)

	_, err = run(t, "users", "add", "--id", "mda-officer", "--role", "mda")
	assert.Error(t, err, "mda needs a scope")

	out, err := run(t, "users", "add", "--id", "mda-officer", "--name", "Officer", "--role", "mda", "--email", "officer@mda.gov", "--scope", "mda-1")
	require.NoError(t, err)
	assert.Contains(t, out, "saved mda-officer")

	out, err = run(t, "token", "--user", "mda-officer")
	require.NoError(t, err)
	actor, err := httpapi.NewTokenManager(testSecret, "receivables-portal", time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, workflow.RoleMDA, actor.Role)
	assert.Equal(t, "mda-1", actor.RoleScopeID)

	_, err = run(t, "token", "--user", "nobody")
	assert.Error(t, err)
}

func TestMigrateAndBills(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migration(s)")

	out, err = run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "true")

	out, err = run(t, "bills", "list", "--view", "certified")
	require.NoError(t, err)
	assert.Contains(t, out, "BILLS")

	_, err = run(t, "bills", "list", "--view", "bogus")
	assert.Error(t, err)

	_, err = run(t, "bills", "show", "missing-bill")
	assert.Error(t, err)
}
