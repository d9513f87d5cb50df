package devserver

import (
	"time"

	"pamana/notes/internal/model"
)

type User struct {
	ID           string
	SchoolID     string
	PasswordHash string
	Role         model.Role
	Course       string
	CreatedAt    time.Time
}

func (u User) Staff() bool {
	return u.Role == model.RoleModerator || u.Role == model.RoleAdmin
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

type Report struct {
	ID         string
	CommentID  int64
	ReporterID string
	Reason     model.ReportReason
	CreatedAt  time.Time
}

// NoteQuery filters ListNotes. Zero fields match everything. Viewer only
// decides the is_liked flag on the results.
type NoteQuery struct {
	Statuses   []model.Status
	Course     string
	Author     string
	Visibility model.Scope
	Viewer     string
}

func (q NoteQuery) matches(n model.Note) bool {
	if q.Author != "" && n.Author != q.Author {
		return false
	}
	if q.Visibility != "" && n.Visibility != q.Visibility {
		return false
	}
	if q.Course != "" && n.Course() != q.Course {
		return false
	}
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if n.Status() == s {
			return true
		}
	}
	return false
}
