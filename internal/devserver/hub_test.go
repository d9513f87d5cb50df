package devserver

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(t *testing.T, app *testApp, noteID int64, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(app.http.URL, "http") + "/ws/notes/" + itoa(noteID) + "/comments/?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) streamEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev streamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestStreamActionsCreateAndDelete(t *testing.T) {
	app := newTestApp(t)
	note := app.noteByTitle(t, "Essay structure guide")

	author, _, err := dialStream(t, app, note.ID, app.token(t, "2021-00077"))
	require.NoError(t, err)
	defer author.Close()
	watcher, _, err := dialStream(t, app, note.ID, app.token(t, "2021-00042"))
	require.NoError(t, err)
	defer watcher.Close()
	require.Eventually(t, func() bool { return app.server.hub.Subscribers(note.ID) == 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, author.WriteJSON(streamAction{Action: "create", Content: "Great outline"}))
	created := readEvent(t, watcher)
	require.Equal(t, "created", created.Event)
	require.NotNil(t, created.Comment)
	assert.Equal(t, "Great outline", created.Comment.Content)
	assert.Equal(t, "2021-00077", created.Comment.Author.SchoolID)
	readEvent(t, author)

	// Only the author or staff may delete.
	require.NoError(t, watcher.WriteJSON(streamAction{Action: "delete", CommentID: created.Comment.ID}))
	denied := readEvent(t, watcher)
	assert.Equal(t, "error", denied.Event)

	require.NoError(t, author.WriteJSON(streamAction{Action: "delete", CommentID: created.Comment.ID}))
	deleted := readEvent(t, watcher)
	assert.Equal(t, "deleted", deleted.Event)
	assert.Equal(t, created.Comment.ID, deleted.CommentID)

	left, err := app.repo.ListNoteComments(context.Background(), note.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStreamRefusesBadTokenAndHiddenNotes(t *testing.T) {
	app := newTestApp(t)
	bsit := app.noteByTitle(t, "Graph traversal walkthrough")

	_, resp, err := dialStream(t, app, bsit.ID, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dialStream(t, app, bsit.ID, app.token(t, "2021-00077"))
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubCloseDropsSubscribers(t *testing.T) {
	app := newTestApp(t)
	note := app.noteByTitle(t, "Essay structure guide")

	conn, _, err := dialStream(t, app, note.ID, app.token(t, "2021-00042"))
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.server.hub.Subscribers(note.ID) == 1 }, 5*time.Second, 10*time.Millisecond)

	app.server.Close()
	assert.Equal(t, 0, app.server.hub.Subscribers(note.ID))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
