package devserver

import (
	"context"
	"sort"
	"sync"
	"time"

	"pamana/notes/internal/model"
)

type wallComment struct {
	comment model.Comment
	deleted bool
}

// MemoryRepository keeps everything in process. It is the default backend
// store when no database is configured.
type MemoryRepository struct {
	mu sync.Mutex

	users    map[string]User
	sessions map[string]RefreshSession
	subjects map[int64]model.Subject
	notes    map[int64]model.Note
	saves    map[int64]map[string]bool

	deletedNotes map[int64]bool
	noteLikes    map[int64]map[string]bool

	noteComments map[int64]model.Comment
	commentNote  map[int64]int64

	posts        map[int64]model.Post
	deletedPosts map[int64]bool
	postLikes    map[int64]map[string]bool
	wall         map[int64]*wallComment
	commentLikes map[int64]map[string]bool
	reports      []Report

	nextID int64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        map[string]User{},
		sessions:     map[string]RefreshSession{},
		subjects:     map[int64]model.Subject{},
		notes:        map[int64]model.Note{},
		saves:        map[int64]map[string]bool{},
		deletedNotes: map[int64]bool{},
		noteLikes:    map[int64]map[string]bool{},
		noteComments: map[int64]model.Comment{},
		commentNote:  map[int64]int64{},
		posts:        map[int64]model.Post{},
		deletedPosts: map[int64]bool{},
		postLikes:    map[int64]map[string]bool{},
		wall:         map[int64]*wallComment{},
		commentLikes: map[int64]map[string]bool{},
	}
}

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) CreateUser(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryRepository) GetUserBySchoolID(_ context.Context, schoolID string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.SchoolID == schoolID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *MemoryRepository) GetUserByID(_ context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryRepository) CreateRefreshSession(_ context.Context, session RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.TokenHash] = session
	return nil
}

func (m *MemoryRepository) GetRefreshSession(_ context.Context, tokenHash string) (RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok {
		return RefreshSession{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepository) RevokeRefreshSession(_ context.Context, id string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, s := range m.sessions {
		if s.ID == id {
			s.RevokedAt = &revokedAt
			m.sessions[hash] = s
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryRepository) CreateSubject(_ context.Context, subject model.Subject) (model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subject.ID = m.id()
	m.subjects[subject.ID] = subject
	return subject, nil
}

func (m *MemoryRepository) GetSubject(_ context.Context, id int64) (model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subjects[id]
	if !ok {
		return model.Subject{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRepository) ListSubjects(_ context.Context) ([]model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) CreateNote(_ context.Context, note model.Note) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	note.ID = m.id()
	m.notes[note.ID] = note
	return note, nil
}

// note returns a live note with its like count, or false when it does not
// exist or was deleted. Callers hold m.mu.
func (m *MemoryRepository) note(id int64) (model.Note, bool) {
	n, ok := m.notes[id]
	if !ok || m.deletedNotes[id] {
		return model.Note{}, false
	}
	n.LikesCount = len(m.noteLikes[id])
	return n, true
}

func (m *MemoryRepository) GetNote(_ context.Context, id int64) (model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.note(id)
	if !ok {
		return model.Note{}, ErrNotFound
	}
	return n, nil
}

func (m *MemoryRepository) UpdateNote(_ context.Context, note model.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.note(note.ID); !ok {
		return ErrNotFound
	}
	note.LikesCount, note.Liked = 0, false
	m.notes[note.ID] = note
	return nil
}

func (m *MemoryRepository) DeleteNote(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.note(id); !ok {
		return ErrNotFound
	}
	m.deletedNotes[id] = true
	return nil
}

func (m *MemoryRepository) ListNotes(_ context.Context, query NoteQuery) ([]model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedNotes(query.Viewer, query.matches), nil
}

func (m *MemoryRepository) sortedNotes(viewerID string, keep func(model.Note) bool) []model.Note {
	out := []model.Note{}
	for id := range m.notes {
		n, ok := m.note(id)
		if !ok || !keep(n) {
			continue
		}
		n.Liked = m.noteLikes[id][viewerID]
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryRepository) ToggleSave(_ context.Context, userID string, noteID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.note(noteID); !ok {
		return false, ErrNotFound
	}
	return toggle(m.saves, noteID, userID), nil
}

func (m *MemoryRepository) ToggleNoteLike(_ context.Context, userID string, noteID int64) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.note(noteID); !ok {
		return false, 0, ErrNotFound
	}
	liked := toggle(m.noteLikes, noteID, userID)
	return liked, len(m.noteLikes[noteID]), nil
}

func (m *MemoryRepository) SavedNotes(_ context.Context, userID string) ([]model.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedNotes(userID, func(n model.Note) bool {
		return m.saves[n.ID][userID] && n.IsApproved
	}), nil
}

func (m *MemoryRepository) ListNoteComments(_ context.Context, noteID int64) ([]model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Comment{}
	for id, c := range m.noteComments {
		if m.commentNote[id] == noteID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) CreateNoteComment(_ context.Context, noteID int64, comment model.Comment) (model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.note(noteID); !ok {
		return model.Comment{}, ErrNotFound
	}
	if comment.ParentID != nil && m.commentNote[*comment.ParentID] != noteID {
		return model.Comment{}, ErrNotFound
	}
	comment.ID = m.id()
	m.noteComments[comment.ID] = comment
	m.commentNote[comment.ID] = noteID
	return comment, nil
}

func (m *MemoryRepository) DeleteNoteComment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.noteComments[id]; !ok {
		return ErrNotFound
	}
	for cid, c := range m.noteComments {
		if cid == id || (c.ParentID != nil && *c.ParentID == id) {
			delete(m.noteComments, cid)
			delete(m.commentNote, cid)
		}
	}
	return nil
}

func (m *MemoryRepository) ListPosts(_ context.Context, viewerID string) ([]model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Post{}
	for id, p := range m.posts {
		if m.deletedPosts[id] {
			continue
		}
		p.LikesCount = len(m.postLikes[id])
		p.Liked = m.postLikes[id][viewerID]
		out = append(out, p)
	}
	// newest first, like the wall
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryRepository) CreatePost(_ context.Context, post model.Post) (model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post.ID = m.id()
	m.posts[post.ID] = post
	return post, nil
}

func (m *MemoryRepository) GetPost(_ context.Context, id int64) (model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || m.deletedPosts[id] {
		return model.Post{}, ErrNotFound
	}
	p.LikesCount = len(m.postLikes[id])
	return p, nil
}

func (m *MemoryRepository) DeletePost(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok || m.deletedPosts[id] {
		return ErrNotFound
	}
	m.deletedPosts[id] = true
	return nil
}

func (m *MemoryRepository) ListWallComments(_ context.Context, viewerID string) ([]model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Comment{}
	for id, wc := range m.wall {
		if wc.deleted || m.deletedPosts[wc.comment.PostID] {
			continue
		}
		c := wc.comment
		c.LikesCount = len(m.commentLikes[id])
		c.Liked = m.commentLikes[id][viewerID]
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) CreateWallComment(_ context.Context, comment model.Comment) (model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[comment.PostID]; !ok || m.deletedPosts[comment.PostID] {
		return model.Comment{}, ErrNotFound
	}
	if comment.ParentID != nil {
		parent, ok := m.wall[*comment.ParentID]
		if !ok || parent.deleted || parent.comment.PostID != comment.PostID {
			return model.Comment{}, ErrNotFound
		}
	}
	comment.ID = m.id()
	m.wall[comment.ID] = &wallComment{comment: comment}
	return comment, nil
}

func (m *MemoryRepository) GetWallComment(_ context.Context, id int64) (model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wc, ok := m.wall[id]
	if !ok || wc.deleted {
		return model.Comment{}, ErrNotFound
	}
	c := wc.comment
	c.LikesCount = len(m.commentLikes[id])
	return c, nil
}

func (m *MemoryRepository) DeleteWallComment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wc, ok := m.wall[id]
	if !ok || wc.deleted {
		return ErrNotFound
	}
	wc.deleted = true
	for _, other := range m.wall {
		if other.comment.ParentID != nil && *other.comment.ParentID == id {
			other.deleted = true
		}
	}
	return nil
}

func (m *MemoryRepository) TogglePostLike(_ context.Context, userID string, postID int64) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok || m.deletedPosts[postID] {
		return false, 0, ErrNotFound
	}
	liked := toggle(m.postLikes, postID, userID)
	return liked, len(m.postLikes[postID]), nil
}

func (m *MemoryRepository) ToggleCommentLike(_ context.Context, userID string, commentID int64) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wc, ok := m.wall[commentID]; !ok || wc.deleted {
		return false, 0, ErrNotFound
	}
	liked := toggle(m.commentLikes, commentID, userID)
	return liked, len(m.commentLikes[commentID]), nil
}

func (m *MemoryRepository) CreateReport(_ context.Context, report Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wc, ok := m.wall[report.CommentID]; !ok || wc.deleted {
		return ErrNotFound
	}
	m.reports = append(m.reports, report)
	return nil
}

// Reports is used by tests and the demo seed.
func (m *MemoryRepository) Reports() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Report(nil), m.reports...)
}

func toggle(set map[int64]map[string]bool, key int64, userID string) bool {
	members, ok := set[key]
	if !ok {
		members = map[string]bool{}
		set[key] = members
	}
	if members[userID] {
		delete(members, userID)
		return false
	}
	members[userID] = true
	return true
}
