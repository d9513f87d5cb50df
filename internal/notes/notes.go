// Package notes covers the author and reader side of notes: uploads, the
// author's own list, saved notes and per-note comment threads.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"pamana/notes/internal/credentials"
	"pamana/notes/internal/gateway"
	"pamana/notes/internal/logging"
	"pamana/notes/internal/model"
	"pamana/notes/internal/optimistic"
	"pamana/notes/internal/visibility"
)

const (
	UploadPath    = "/notes/api/student/upload/"
	MyNotesPath   = "/notes/api/student/my-notes/"
	SavedPath     = "/notes/api/student/saved/"
	DashboardPath = "/notes/api/student/dashboard/"
	SubjectsPath  = "/notes/api/subjects/"
	PublicPath    = "/notes/api/public/"
)

func savePath(id int64) string     { return fmt.Sprintf("/notes/api/notes/%d/save/", id) }
func likePath(id int64) string     { return fmt.Sprintf("/notes/api/notes/%d/like/", id) }
func commentsPath(id int64) string { return fmt.Sprintf("/notes/api/notes/%d/comments/", id) }
func ownNotePath(id int64) string  { return fmt.Sprintf("/notes/api/student/notes/%d/", id) }

type Library struct {
	gw     gateway.Doer
	logger *slog.Logger
	now    func() time.Time

	liveURL string
	store   credentials.Store

	mu         sync.Mutex
	mine       []model.Note
	saved      map[int64]bool
	savedNotes []model.Note
	version    uint64
	threads    map[int64]*optimistic.Thread
	closed     bool
}

type Option func(*Library)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) { l.logger = logging.OrDefault(logger) }
}

// WithLive enables Live. baseURL is the backend's http(s) URL; the access
// credential is read from store when connecting.
func WithLive(baseURL string, store credentials.Store) Option {
	return func(l *Library) {
		l.liveURL = strings.TrimRight(baseURL, "/")
		l.store = store
	}
}

func New(gw gateway.Doer, opts ...Option) *Library {
	l := &Library{
		gw:      gw,
		logger:  slog.Default(),
		now:     time.Now,
		saved:   map[int64]bool{},
		threads: map[int64]*optimistic.Thread{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Library) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

// update runs fn under the lock unless the library was closed.
func (l *Library) update(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		fn()
	}
}

// Upload describes a new note. An empty Visibility takes the subject's
// default; an explicit one must be allowed for the subject.
type Upload struct {
	Title       string            `validate:"required,max=255"`
	Description string            `validate:"max=5000"`
	Subject     *model.Subject    `validate:"required"`
	Visibility  model.Scope       `validate:"omitempty,oneof=public school course"`
	File        *gateway.FilePart `validate:"required"`
}

func (l *Library) Upload(ctx context.Context, up Upload) (model.Note, error) {
	up.Title = strings.TrimSpace(up.Title)
	if err := model.Validate(up); err != nil {
		return model.Note{}, err
	}
	subjectType := up.Subject.TypeRef()
	scope := up.Visibility
	if scope == "" {
		scope = visibility.DefaultScope(subjectType)
	}
	if !visibility.IsAllowed(scope, subjectType) {
		return model.Note{}, &model.ValidationError{
			Field:  "visibility",
			Reason: fmt.Sprintf("%s is not allowed for a %s subject", scope, up.Subject.Type()),
		}
	}

	fields := map[string]string{
		"title":       up.Title,
		"description": up.Description,
		"subject":     strconv.FormatInt(up.Subject.ID, 10),
		"visibility":  string(scope),
	}
	req, err := gateway.MultipartRequest(http.MethodPost, UploadPath, fields, up.File)
	if err != nil {
		return model.Note{}, err
	}
	resp, err := l.gw.Send(ctx, req)
	if err != nil {
		return model.Note{}, errors.Wrap(err, "upload note")
	}

	note := model.Note{
		Title:       up.Title,
		Description: up.Description,
		Subject:     up.Subject,
		Visibility:  scope,
		UploadedAt:  l.now(),
	}
	var created model.Note
	if err := resp.Decode(&created); err == nil && created.ID != 0 {
		note.ID = created.ID
		note.Author = created.Author
		note.File = created.File
		if !created.UploadedAt.IsZero() {
			note.UploadedAt = created.UploadedAt
		}
	}
	note = note.ResetToPending()
	l.update(func() { l.mine = append([]model.Note{note}, l.mine...) })
	return note, nil
}

func (l *Library) MyNotes(ctx context.Context) ([]model.Note, error) {
	var notes []model.Note
	if err := l.gw.Do(ctx, http.MethodGet, MyNotesPath, nil, &notes); err != nil {
		return nil, errors.Wrap(err, "load my notes")
	}
	l.update(func() { l.mine = append([]model.Note(nil), notes...) })
	return notes, nil
}

func (l *Library) Mine() []model.Note {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Note(nil), l.mine...)
}

// DeleteNote removes one of the author's notes. It is not optimistic: the
// note leaves the local lists only once the server confirms.
func (l *Library) DeleteNote(ctx context.Context, author string, note model.Note) error {
	if author == "" || note.Author != author {
		return model.ErrNotAuthor
	}
	if err := l.gw.Do(ctx, http.MethodDelete, ownNotePath(note.ID), nil, nil); err != nil {
		return errors.Wrapf(err, "delete note %d", note.ID)
	}
	l.update(func() {
		l.mine = without(l.mine, note.ID)
		if l.saved[note.ID] {
			delete(l.saved, note.ID)
			l.savedNotes = without(l.savedNotes, note.ID)
			l.version++
		}
		delete(l.threads, note.ID)
	})
	return nil
}

// Public lists approved public notes. No credential is needed.
func (l *Library) Public(ctx context.Context) ([]model.Note, error) {
	var page notePage
	if err := l.gw.Do(ctx, http.MethodGet, PublicPath, nil, &page); err != nil {
		return nil, errors.Wrap(err, "load public notes")
	}
	return page.Notes, nil
}

type Dashboard struct {
	MyNotes  int `json:"my_notes"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

func (l *Library) Dashboard(ctx context.Context) (Dashboard, error) {
	var dash Dashboard
	if err := l.gw.Do(ctx, http.MethodGet, DashboardPath, nil, &dash); err != nil {
		return Dashboard{}, errors.Wrap(err, "load dashboard")
	}
	return dash, nil
}

type LikeState struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// ToggleLike flips the viewer's like on a note. Both the flag and the count
// come from the server response and are copied onto every local copy.
func (l *Library) ToggleLike(ctx context.Context, id int64) (LikeState, error) {
	var state LikeState
	if err := l.gw.Do(ctx, http.MethodPost, likePath(id), nil, &state); err != nil {
		return LikeState{}, errors.Wrap(err, "toggle like")
	}
	apply := func(notes []model.Note) {
		for i := range notes {
			if notes[i].ID == id {
				notes[i].Liked = state.Liked
				notes[i].LikesCount = state.LikesCount
			}
		}
	}
	l.update(func() {
		apply(l.mine)
		apply(l.savedNotes)
	})
	return state, nil
}

func without(notes []model.Note, id int64) []model.Note {
	out := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

// Subjects lists the subjects a note can be filed under.
func (l *Library) Subjects(ctx context.Context) ([]model.Subject, error) {
	var subjects []model.Subject
	if err := l.gw.Do(ctx, http.MethodGet, SubjectsPath, nil, &subjects); err != nil {
		return nil, errors.Wrap(err, "load subjects")
	}
	return subjects, nil
}

type notePage struct {
	Count int          `json:"count"`
	Notes []model.Note `json:"notes"`
}

// Saved loads the viewer's saved notes and resets the local saved set.
func (l *Library) Saved(ctx context.Context) ([]model.Note, error) {
	var page notePage
	if err := l.gw.Do(ctx, http.MethodGet, SavedPath, nil, &page); err != nil {
		return nil, errors.Wrap(err, "load saved notes")
	}
	l.update(func() {
		l.saved = make(map[int64]bool, len(page.Notes))
		for i := range page.Notes {
			page.Notes[i].Saved = true
			l.saved[page.Notes[i].ID] = true
		}
		l.savedNotes = append([]model.Note(nil), page.Notes...)
		l.version++
	})
	return page.Notes, nil
}

func (l *Library) IsSaved(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saved[id]
}

// SaveVersion increases whenever the saved set changes. Screens compare it
// to decide whether their copy of saved flags is stale.
func (l *Library) SaveVersion() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// ToggleSave flips the saved flag at once and restores it if the server
// refuses. The server's answer wins over the local guess.
func (l *Library) ToggleSave(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	previous := l.saved[id]
	if !l.closed {
		l.saved[id] = !previous
	}
	l.mu.Unlock()

	var resp struct {
		Saved bool `json:"saved"`
	}
	if err := l.gw.Do(ctx, http.MethodPost, savePath(id), nil, &resp); err != nil {
		l.update(func() { l.saved[id] = previous })
		return previous, errors.Wrap(err, "toggle save")
	}
	l.update(func() {
		l.saved[id] = resp.Saved
		if !resp.Saved {
			kept := l.savedNotes[:0]
			for _, n := range l.savedNotes {
				if n.ID != id {
					kept = append(kept, n)
				}
			}
			l.savedNotes = kept
		}
		l.version++
	})
	return resp.Saved, nil
}

// Comments loads the thread of a note.
func (l *Library) Comments(ctx context.Context, noteID int64) ([]model.Comment, error) {
	var comments []model.Comment
	if err := l.gw.Do(ctx, http.MethodGet, commentsPath(noteID), nil, &comments); err != nil {
		return nil, errors.Wrap(err, "load comments")
	}
	var snapshot []model.Comment
	l.update(func() {
		thread := l.thread(noteID)
		thread.Reset(comments)
		snapshot = thread.Snapshot()
	})
	if snapshot == nil {
		snapshot = optimistic.NewThread(comments).Snapshot()
	}
	return snapshot, nil
}

func (l *Library) Thread(noteID int64) []model.Comment {
	l.mu.Lock()
	defer l.mu.Unlock()
	if thread, ok := l.threads[noteID]; ok {
		return thread.Snapshot()
	}
	return nil
}

func (l *Library) thread(noteID int64) *optimistic.Thread {
	thread, ok := l.threads[noteID]
	if !ok {
		thread = optimistic.NewThread(nil)
		l.threads[noteID] = thread
	}
	return thread
}

type commentRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
	Parent  *int64 `json:"parent,omitempty"`
}

// AddComment shows the comment at once and confirms or removes it when the
// server answers. A backend that does not echo the comment triggers a
// reload of the thread.
func (l *Library) AddComment(ctx context.Context, author model.Author, noteID int64, content string, parent *int64) (model.Comment, error) {
	req := commentRequest{Content: strings.TrimSpace(content), Parent: parent}
	if err := model.Validate(req); err != nil {
		return model.Comment{}, err
	}

	local := model.Comment{ParentID: parent, Author: author, Content: req.Content, CreatedAt: l.now()}
	var (
		handle optimistic.Handle
		ok     = true
	)
	l.update(func() {
		thread := l.thread(noteID)
		if parent == nil {
			handle = thread.Add(local)
			return
		}
		handle, ok = thread.AddReply(*parent, local)
	})
	if !ok {
		return model.Comment{}, errors.Errorf("comment %d is not in the thread", *parent)
	}

	var created model.Comment
	if err := l.gw.Do(ctx, http.MethodPost, commentsPath(noteID), req, &created); err != nil {
		l.update(func() { l.thread(noteID).Revert(handle) })
		return model.Comment{}, errors.Wrap(err, "add comment")
	}
	if created.ID != 0 {
		l.update(func() { l.thread(noteID).Confirm(handle, created) })
		return created, nil
	}

	if _, err := l.Comments(ctx, noteID); err != nil {
		l.logger.Warn("reload comments failed", "note_id", noteID, "error", err)
		l.update(func() { l.thread(noteID).Confirm(handle, local) })
	}
	return local, nil
}
