package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pamana/notes/internal/config"
	"pamana/notes/internal/devserver"
	"pamana/notes/internal/model"
)

func startBackend(t *testing.T) (*httptest.Server, *devserver.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := devserver.NewMemoryRepository()
	require.NoError(t, devserver.Seed(context.Background(), repo, logger))
	server := devserver.NewServer(config.Config{
		JWTSecret:       "cli-secret",
		JWTIssuer:       "cli-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}, repo, devserver.WithLogger(logger))
	app := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})
	return app, repo
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := runWithStderr(t, args...)
	return out, err
}

func runWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func useBackend(t *testing.T, url string) {
	t.Setenv("PAMANA_API_URL", url)
	t.Setenv("PAMANA_CREDENTIALS", "file")
	t.Setenv("PAMANA_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestModeratorSessionFromTheTerminal(t *testing.T) {
	app, repo := startBackend(t)
	useBackend(t, app.URL)

	out, err := run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")

	out, err = run(t, "login", "2020-00101", "--password", devserver.DemoPassword)
	require.NoError(t, err)
	assert.Contains(t, out, "moderator")

	out, err = run(t, "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "Linked lists cheat sheet")
	assert.NotContains(t, out, "Set theory reviewer")

	notes, err := repo.ListNotes(context.Background(), devserver.NoteQuery{Statuses: []model.Status{model.StatusPending}, Course: "BSIT"})
	require.NoError(t, err)
	require.Len(t, notes, 1)

	_, err = run(t, "reject", itoa(notes[0].ID))
	require.Error(t, err)

	out, err = run(t, "approve", itoa(notes[0].ID))
	require.NoError(t, err)
	assert.Contains(t, out, "approved")

	out, err = run(t, "logout")
	require.NoError(t, err)
	_, err = run(t, "queue")
	assert.Error(t, err)
}

func TestStudentManagesOwnNotes(t *testing.T) {
	app, repo := startBackend(t)
	useBackend(t, app.URL)

	_, err := run(t, "login", "2021-00077", "--password", devserver.DemoPassword)
	require.NoError(t, err)

	out, err := run(t, "dashboard")
	require.NoError(t, err)
	assert.Equal(t, "2 notes: 1 approved, 1 pending, 0 rejected\n", out)

	out, err = run(t, "public")
	require.NoError(t, err)
	assert.Contains(t, out, "Essay structure guide")
	assert.NotContains(t, out, "Set theory reviewer")

	mine, err := repo.ListNotes(context.Background(), devserver.NoteQuery{Author: "2021-00077"})
	require.NoError(t, err)
	var pending, approved model.Note
	for _, n := range mine {
		if n.Status() == model.StatusPending {
			pending = n
		} else {
			approved = n
		}
	}

	out, err = run(t, "like-note", itoa(approved.ID))
	require.NoError(t, err)
	assert.Equal(t, "liked note "+itoa(approved.ID)+" (1 likes)\n", out)

	out, err = run(t, "delete-note", itoa(pending.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "deleted note")
	_, err = repo.GetNote(context.Background(), pending.ID)
	assert.ErrorIs(t, err, devserver.ErrNotFound)

	linked, err := repo.ListNotes(context.Background(), devserver.NoteQuery{Author: "2021-00042"})
	require.NoError(t, err)
	require.NotEmpty(t, linked)
	_, err = run(t, "delete-note", itoa(linked[0].ID))
	assert.ErrorIs(t, err, model.ErrNotAuthor)
}

func TestMetricsFlagDumpsGatewayCounters(t *testing.T) {
	app, _ := startBackend(t)
	useBackend(t, app.URL)

	_, errOut, err := runWithStderr(t, "login", "2021-00042", "--password", devserver.DemoPassword)
	require.NoError(t, err)
	assert.NotContains(t, errOut, "pamana_gateway")

	_, errOut, err = runWithStderr(t, "--metrics", "wall")
	require.NoError(t, err)
	assert.Contains(t, errOut, "pamana_gateway_requests_total")
	assert.Contains(t, errOut, "pamana_gateway_session_expired_total 0")
}

func TestAwaitShowsLoadingWhileBusy(t *testing.T) {
	var errOut bytes.Buffer
	a := &app{errOut: &errOut}

	release := make(chan struct{})
	var once sync.Once
	busy := func() bool {
		once.Do(func() { close(release) })
		return true
	}
	require.NoError(t, a.await(busy, func() error {
		<-release
		return nil
	}))
	assert.Equal(t, "loading…\n", errOut.String())

	errOut.Reset()
	fail := errors.New("boom")
	err := a.await(func() bool { return false }, func() error { return fail })
	assert.ErrorIs(t, err, fail)
	assert.Empty(t, errOut.String())
}

func TestScopesCommand(t *testing.T) {
	t.Setenv("PAMANA_CREDENTIALS", "memory")
	out, err := run(t, "scopes", "major")
	require.NoError(t, err)
	assert.Equal(t, "Major: course (default course)\n", out)

	out, err = run(t, "scopes", "General")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "General: public, school"))

	_, err = run(t, "scopes", "elective")
	assert.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "14"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 14}, ids)

	_, err = parseIDs([]string{"3", "x"})
	assert.Error(t, err)
	_, err = parseID("0")
	assert.Error(t, err)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
