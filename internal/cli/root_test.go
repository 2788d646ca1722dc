package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/clock"
	"fintrack/internal/core"
	"fintrack/internal/fakeapi"
	"fintrack/internal/log"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fintrack", cmd.Use)
	assert.Contains(t, cmd.Long, "offline")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"login"}, {"logout"}, {"watch"}, {"events"}, {"fake-api"},
		{"tickets", "list"}, {"tickets", "import"}, {"tickets", "delete"}, {"tickets", "stats"}, {"tickets", "export"},
		{"expenses", "list"}, {"expenses", "delete"}, {"expenses", "stats"},
		{"revenues", "list"}, {"revenues", "delete"}, {"revenues", "stats"},
		{"categories", "list"}, {"categories", "delete"}, {"categories", "stats"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestListCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	listCmd, _, err := cmd.Find([]string{"tickets", "list"})
	require.NoError(t, err)

	offline := listCmd.Flags().Lookup("offline")
	require.NotNil(t, offline)
	assert.Equal(t, "false", offline.DefValue)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad")))
	assert.Equal(t, ExitAuth, GetExitCode(core.NewAuthError(core.ErrMissingToken)))
	assert.Equal(t, ExitCommandError, GetExitCode(core.NewValidationError(core.ErrTooLarge)))
	assert.Equal(t, ExitFailure, GetExitCode(&core.ServerError{Status: 500}))
}

// harness runs commands against a fake backend and a temporary state db.
type harness struct {
	t   *testing.T
	api *fakeapi.Server
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	srv := fakeapi.NewServer(log.Discard(), clock.Real())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	t.Setenv("FINTRACK_API_URL", ts.URL)
	t.Setenv("FINTRACK_STATE_DB", filepath.Join(dir, "state.db"))
	t.Setenv("FINTRACK_RECONCILE_DELAY", "0s")
	t.Setenv("FINTRACK_ENDPOINTS_FILE", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	return &harness{t: t, api: srv, dir: dir}
}

func (h *harness) run(args ...string) (string, int) {
	h.t.Helper()
	cmd, opts := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(bytes.NewReader(nil))
	code := execute(cmd, opts, args)
	return stdout.String(), code
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestListRequiresLogin(t *testing.T) {
	h := newHarness(t)

	out, code := h.run("tickets", "list", "--format", "json")
	assert.Equal(t, ExitAuth, code)
	assert.Contains(t, out, core.KindAuth)
}

func TestListDeleteAndOffline(t *testing.T) {
	h := newHarness(t)
	seeded := h.api.SeedTickets("tok",
		core.Ticket{Merchant: "Bar", Amount: core.Money{Cents: 350}, Date: core.NewDate(2024, 5, 2)},
		core.Ticket{Merchant: "Shop", Amount: core.Money{Cents: 1200}, Date: core.NewDate(2024, 5, 3)},
	)

	_, code := h.run("login", "--token", "tok")
	require.Equal(t, ExitSuccess, code)

	out, code := h.run("tickets", "list", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	tickets := decodeData[[]core.Ticket](t, out)
	require.Len(t, tickets, 2)

	out, code = h.run("tickets", "delete", "--format", "json", id(seeded[0]))
	require.Equal(t, ExitSuccess, code, out)
	assert.Len(t, h.api.Tickets("tok"), 1)

	// The snapshot written after the delete is what --offline shows.
	h.api.RevokeToken("tok")
	out, code = h.run("tickets", "list", "--offline", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	cached := decodeData[[]core.Ticket](t, out)
	require.Len(t, cached, 1)
	assert.Equal(t, seeded[1].ID, cached[0].ID)
}

func TestLogoutDropsCachedCollections(t *testing.T) {
	h := newHarness(t)
	h.api.SeedTickets("tok", core.Ticket{Merchant: "Bar", Amount: core.Money{Cents: 350}})

	_, code := h.run("login", "--token", "tok")
	require.Equal(t, ExitSuccess, code)
	out, code := h.run("tickets", "list", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	require.Len(t, decodeData[[]core.Ticket](t, out), 1)

	_, code = h.run("logout")
	require.Equal(t, ExitSuccess, code)

	out, code = h.run("tickets", "list", "--offline", "--format", "json")
	require.Equal(t, ExitSuccess, code, out)
	assert.Empty(t, decodeData[[]core.Ticket](t, out))
}

func TestDeleteRejectsBadID(t *testing.T) {
	h := newHarness(t)
	_, code := h.run("expenses", "delete", "abc")
	assert.Equal(t, ExitCommandError, code)
}

func TestImportWaitsForRefetch(t *testing.T) {
	h := newHarness(t)
	h.api.AddToken("tok")
	_, code := h.run("login", "--token", "tok")
	require.Equal(t, ExitSuccess, code)

	receipt := filepath.Join(h.dir, "corner_cafe.png")
	require.NoError(t, os.WriteFile(receipt, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), 0o600))

	out, code := h.run("tickets", "import", receipt)
	require.Equal(t, ExitSuccess, code, out)
	assert.Contains(t, out, "corner cafe")
	assert.Contains(t, out, "1 tickets cached.")
	assert.Len(t, h.api.Tickets("tok"), 1)
}

func TestImportRejectsUnsupportedType(t *testing.T) {
	h := newHarness(t)
	h.api.AddToken("tok")
	_, code := h.run("login", "--token", "tok")
	require.Equal(t, ExitSuccess, code)

	notes := filepath.Join(h.dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("TOTAL 12,30\n"), 0o600))

	out, code := h.run("tickets", "import", "--format", "json", notes)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, out, core.KindValidation)
	assert.Empty(t, h.api.Tickets("tok"))
}

func TestCategoriesStatsUnsupported(t *testing.T) {
	h := newHarness(t)
	h.api.AddToken("tok")
	_, code := h.run("login", "--token", "tok")
	require.Equal(t, ExitSuccess, code)

	_, code = h.run("categories", "stats")
	assert.Equal(t, ExitCommandError, code)
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, code := h.run("logout", "--format", "yaml")
	assert.Equal(t, ExitCommandError, code)
}
