package devserver

import (
	"context"
	"errors"
	"time"

	"pamana/notes/internal/model"
)

var ErrNotFound = errors.New("not found")

// Repository is the storage behind the dev backend. Lists come back in
// creation order; comments come back flat and the server builds threads.
type Repository interface {
	CreateUser(ctx context.Context, user User) error
	GetUserBySchoolID(ctx context.Context, schoolID string) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)

	CreateRefreshSession(ctx context.Context, session RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, id string, revokedAt time.Time) error

	CreateSubject(ctx context.Context, subject model.Subject) (model.Subject, error)
	GetSubject(ctx context.Context, id int64) (model.Subject, error)
	ListSubjects(ctx context.Context) ([]model.Subject, error)

	CreateNote(ctx context.Context, note model.Note) (model.Note, error)
	GetNote(ctx context.Context, id int64) (model.Note, error)
	UpdateNote(ctx context.Context, note model.Note) error
	DeleteNote(ctx context.Context, id int64) error
	ListNotes(ctx context.Context, query NoteQuery) ([]model.Note, error)
	ToggleSave(ctx context.Context, userID string, noteID int64) (bool, error)
	ToggleNoteLike(ctx context.Context, userID string, noteID int64) (bool, int, error)
	SavedNotes(ctx context.Context, userID string) ([]model.Note, error)

	ListNoteComments(ctx context.Context, noteID int64) ([]model.Comment, error)
	CreateNoteComment(ctx context.Context, noteID int64, comment model.Comment) (model.Comment, error)
	DeleteNoteComment(ctx context.Context, id int64) error

	ListPosts(ctx context.Context, viewerID string) ([]model.Post, error)
	CreatePost(ctx context.Context, post model.Post) (model.Post, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	DeletePost(ctx context.Context, id int64) error
	ListWallComments(ctx context.Context, viewerID string) ([]model.Comment, error)
	CreateWallComment(ctx context.Context, comment model.Comment) (model.Comment, error)
	GetWallComment(ctx context.Context, id int64) (model.Comment, error)
	DeleteWallComment(ctx context.Context, id int64) error
	TogglePostLike(ctx context.Context, userID string, postID int64) (bool, int, error)
	ToggleCommentLike(ctx context.Context, userID string, commentID int64) (bool, int, error)
	CreateReport(ctx context.Context, report Report) error
}

// buildThreads nests replies under their top-level comment. A reply to a
// reply is attached to the top-level ancestor.
func buildThreads(flat []model.Comment) []model.Comment {
	parentOf := make(map[int64]int64, len(flat))
	for _, c := range flat {
		if c.ParentID != nil {
			parentOf[c.ID] = *c.ParentID
		}
	}
	root := func(id int64) int64 {
		for i := 0; i < len(flat); i++ {
			p, ok := parentOf[id]
			if !ok {
				return id
			}
			id = p
		}
		return id
	}

	var tops []model.Comment
	index := map[int64]int{}
	for _, c := range flat {
		if c.ParentID == nil {
			c.Replies = []model.Comment{}
			index[c.ID] = len(tops)
			tops = append(tops, c)
		}
	}
	for _, c := range flat {
		if c.ParentID == nil {
			continue
		}
		i, ok := index[root(c.ID)]
		if !ok {
			continue
		}
		c.Replies = nil
		tops[i].Replies = append(tops[i].Replies, c)
	}
	if tops == nil {
		tops = []model.Comment{}
	}
	return tops
}
