package devserver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pamana/notes/internal/credentials"
	"pamana/notes/internal/feed"
	"pamana/notes/internal/gateway"
	"pamana/notes/internal/model"
	"pamana/notes/internal/moderation"
	"pamana/notes/internal/notes"
	"pamana/notes/internal/session"
	"pamana/notes/internal/visibility"
)

type client struct {
	store  *credentials.MemoryStore
	gw     *gateway.Gateway
	oracle *session.Oracle
}

func (a *testApp) login(t *testing.T, schoolID string) *client {
	t.Helper()
	store := credentials.NewMemoryStore()
	gw := gateway.New(a.http.URL, store)
	require.NoError(t, gw.Login(context.Background(), schoolID, DemoPassword))
	return &client{store: store, gw: gw, oracle: session.New(store)}
}

func (c *client) author(t *testing.T) model.Author {
	id, ok := c.oracle.SchoolID(context.Background())
	require.True(t, ok)
	return model.Author{SchoolID: id}
}

func TestModeratorReviewsOwnCourse(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	mod := app.login(t, "2020-00101")

	role, ok := mod.oracle.Role(ctx)
	require.True(t, ok)
	course, _ := mod.oracle.Course(ctx)
	assert.Equal(t, model.RoleModerator, role)
	assert.Equal(t, "BSIT", course)

	engine := moderation.New(mod.gw)
	pending, err := engine.LoadQueue(ctx, role, course)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Linked lists cheat sheet", pending[0].Title)

	require.NoError(t, engine.Approve(ctx, pending[0].ID))
	assert.Empty(t, engine.Pending())

	moderated, err := engine.LoadModerated(ctx, role, course)
	require.NoError(t, err)
	assert.Len(t, moderated, 2)
	assert.Equal(t, 2, engine.Stats().Approved)

	stored, err := app.repo.GetNote(ctx, pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status())
}

func TestStudentHasNoQueue(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00042")

	role, _ := student.oracle.Role(ctx)
	_, err := moderation.New(student.gw).LoadQueue(ctx, role, "BSIT")
	assert.ErrorIs(t, err, visibility.ErrNoQueueAccess)
}

func TestBulkApproveAcrossCourses(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	mod := app.login(t, "2020-00101")

	own := app.noteByTitle(t, "Linked lists cheat sheet")
	other := app.noteByTitle(t, "Set theory reviewer")

	result := moderation.New(mod.gw).BulkApprove(ctx, []int64{own.ID, other.ID})
	assert.Equal(t, []int64{own.ID}, result.Approved)
	require.Contains(t, result.Failed, other.ID)
	assert.True(t, gateway.IsStatus(result.Failed[other.ID], 403))
}

func TestUploadRejectResubmit(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00042")
	mod := app.login(t, "2020-00101")

	library := notes.New(student.gw)
	subjects, err := library.Subjects(ctx)
	require.NoError(t, err)
	var major model.Subject
	for _, s := range subjects {
		if s.Type() == model.SubjectMajor && s.Course == "BSIT" {
			major = s
		}
	}
	require.NotZero(t, major.ID)

	uploaded, err := library.Upload(ctx, notes.Upload{
		Title:   "Heaps in one page",
		Subject: &major,
		File:    &gateway.FilePart{Name: "heaps.pdf", Contents: strings.NewReader("%PDF-1.7")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ScopeCourse, uploaded.Visibility)
	assert.Equal(t, model.StatusPending, uploaded.Status())
	assert.Equal(t, "2021-00042", uploaded.Author)

	mine, err := library.MyNotes(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, mine)
	assert.Equal(t, uploaded.ID, mine[0].ID)

	engine := moderation.New(mod.gw)
	require.NoError(t, engine.Reject(ctx, uploaded.ID, "  Missing page numbers "))
	rejected, err := app.repo.GetNote(ctx, uploaded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Missing page numbers", rejected.RejectionReason)

	_, err = moderation.New(mod.gw).Resubmit(ctx, "2020-00101", rejected, moderation.Resubmission{})
	assert.ErrorIs(t, err, moderation.ErrNotAuthor)

	title := "Heaps in one page (v2)"
	resubmitted, err := moderation.New(student.gw).Resubmit(ctx, "2021-00042", rejected, moderation.Resubmission{
		Title: &title,
		File:  &gateway.FilePart{Name: "heaps-v2.pdf", Contents: strings.NewReader("%PDF-1.7 v2")},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, resubmitted.Status())
	assert.Empty(t, resubmitted.RejectionReason)

	stored, err := app.repo.GetNote(ctx, uploaded.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status())
	assert.Equal(t, title, stored.Title)
	assert.NotEqual(t, rejected.File, stored.File)
}

func TestAuthorDeletesOwnNote(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00077")
	library := notes.New(student.gw)
	note := app.noteByTitle(t, "Set theory reviewer")

	err := notes.New(app.login(t, "2021-00042").gw).DeleteNote(ctx, "2021-00042", note)
	assert.ErrorIs(t, err, model.ErrNotAuthor)

	before, err := library.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, notes.Dashboard{MyNotes: 2, Approved: 1, Pending: 1}, before)

	_, err = library.MyNotes(ctx)
	require.NoError(t, err)
	require.NoError(t, library.DeleteNote(ctx, "2021-00077", note))
	for _, n := range library.Mine() {
		assert.NotEqual(t, note.ID, n.ID)
	}
	_, err = app.repo.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := library.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, notes.Dashboard{MyNotes: 1, Approved: 1}, after)
}

func TestPublicNoteLikes(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	library := notes.New(app.login(t, "2021-00042").gw)

	public, err := library.Public(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "Essay structure guide", public[0].Title)
	assert.Zero(t, public[0].LikesCount)

	state, err := library.ToggleLike(ctx, public[0].ID)
	require.NoError(t, err)
	assert.Equal(t, notes.LikeState{Liked: true, LikesCount: 1}, state)

	state, err = notes.New(app.login(t, "2020-00101").gw).ToggleLike(ctx, public[0].ID)
	require.NoError(t, err)
	assert.Equal(t, notes.LikeState{Liked: true, LikesCount: 2}, state)

	state, err = library.ToggleLike(ctx, public[0].ID)
	require.NoError(t, err)
	assert.Equal(t, notes.LikeState{Liked: false, LikesCount: 1}, state)
}

func TestSaveToggleRoundTrip(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00077")
	library := notes.New(student.gw)
	note := app.noteByTitle(t, "Essay structure guide")

	saved, err := library.ToggleSave(ctx, note.ID)
	require.NoError(t, err)
	assert.True(t, saved)

	list, err := library.Saved(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, library.IsSaved(note.ID))

	saved, err = library.ToggleSave(ctx, note.ID)
	require.NoError(t, err)
	assert.False(t, saved)
	list, err = library.Saved(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestExpiredAccessIsRenewedTransparently(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00042")

	before, _, err := student.store.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, student.store.Set(ctx, model.Credential{Access: "stale"}))

	posts, err := feed.New(student.gw).Load(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, posts)

	after, _, err := student.store.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", after.Access)
	assert.NotEqual(t, before.Refresh, after.Refresh)
}

func TestRevokedRefreshEndsSession(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00042")

	// Another device renews first, so this refresh token is already spent.
	cred, _, _ := student.store.Get(ctx)
	other := credentials.NewMemoryStore()
	require.NoError(t, other.Set(ctx, cred))
	require.NoError(t, gateway.New(app.http.URL, other).Renew(ctx))

	require.NoError(t, student.store.Set(ctx, model.Credential{Access: "stale"}))
	_, err := feed.New(student.gw).Load(ctx)
	assert.ErrorIs(t, err, gateway.ErrSessionExpired)
	_, ok, _ := student.store.Get(ctx)
	assert.False(t, ok)
}

func TestWallThreadAndPermissions(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	alice := app.login(t, "2021-00042")
	bob := app.login(t, "2021-00077")
	mod := app.login(t, "2020-00101")

	aliceFeed := feed.New(alice.gw)
	_, err := aliceFeed.Load(ctx)
	require.NoError(t, err)
	post, err := aliceFeed.CreatePost(ctx, alice.author(t), "Anyone has the DSA midterm reviewer?")
	require.NoError(t, err)
	assert.True(t, post.CanDelete)

	bobFeed := feed.New(bob.gw)
	_, err = bobFeed.Load(ctx)
	require.NoError(t, err)
	comment, err := bobFeed.CreateComment(ctx, bob.author(t), post.ID, "Check the saved notes tab")
	require.NoError(t, err)
	_, err = aliceFeed.Load(ctx)
	require.NoError(t, err)
	reply, err := aliceFeed.CreateReply(ctx, alice.author(t), post.ID, comment.ID, "Thanks!")
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, comment.ID, *reply.ParentID)

	state, err := bobFeed.ToggleLike(ctx, feed.Post(post.ID))
	require.NoError(t, err)
	assert.Equal(t, feed.LikeState{Liked: true, LikesCount: 1}, state)

	posts, err := bobFeed.Load(ctx)
	require.NoError(t, err)
	var seen model.Post
	for _, p := range posts {
		if p.ID == post.ID {
			seen = p
		}
	}
	assert.False(t, seen.CanDelete)
	assert.True(t, seen.Liked)
	assert.Equal(t, 2, seen.CommentsCount)
	require.Len(t, seen.Comments, 1)
	require.Len(t, seen.Comments[0].Replies, 1)
	assert.False(t, seen.Comments[0].Replies[0].CanDelete)

	assert.ErrorIs(t, bobFeed.DeletePost(ctx, post.ID), feed.ErrNotDeletable)

	modFeed := feed.New(mod.gw)
	_, err = modFeed.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, modFeed.DeleteComment(ctx, comment.ID))

	posts, err = aliceFeed.Load(ctx)
	require.NoError(t, err)
	for _, p := range posts {
		if p.ID == post.ID {
			assert.Empty(t, p.Comments)
		}
	}
	require.NoError(t, aliceFeed.DeletePost(ctx, post.ID))
}

func TestReportAsyncReachesBackend(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	student := app.login(t, "2021-00077")
	comments, _ := app.repo.ListWallComments(ctx, "")
	require.NotEmpty(t, comments)

	done := make(chan error, 1)
	require.NoError(t, feed.New(student.gw).ReportAsync(ctx, comments[0].ID, "abusive", func(err error) { done <- err }))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("report did not finish")
	}
	assert.Len(t, app.repo.Reports(), 1)
}

func TestLiveCommentsFollowRESTAndSocketActions(t *testing.T) {
	app := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	viewer := app.login(t, "2021-00042")
	writer := app.login(t, "2020-00101")
	note := app.noteByTitle(t, "Graph traversal walkthrough")

	library := notes.New(viewer.gw, notes.WithLive(app.http.URL, viewer.store))
	_, err := library.Comments(ctx, note.ID)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []notes.Event
	)
	liveDone := make(chan error, 1)
	go func() {
		liveDone <- library.Live(ctx, note.ID, func(ev notes.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		})
	}()
	require.Eventually(t, func() bool { return app.server.hub.Subscribers(note.ID) == 1 }, 5*time.Second, 10*time.Millisecond)

	created, err := notes.New(writer.gw).AddComment(ctx, writer.author(t), note.ID, "Nice diagrams", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 5*time.Second, 10*time.Millisecond)
	thread := library.Thread(note.ID)
	require.Len(t, thread, 1)
	assert.Equal(t, created.ID, thread[0].ID)

	require.NoError(t, app.repo.DeleteNoteComment(ctx, created.ID))
	app.server.hub.Broadcast(note.ID, streamEvent{Event: notes.EventDeleted, CommentID: created.ID})

	require.Eventually(t, func() bool { return len(library.Thread(note.ID)) == 0 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-liveDone:
		assert.True(t, err == nil || errors.Is(err, context.Canceled), "unexpected live error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("live stream did not stop")
	}
}
