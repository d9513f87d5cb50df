// Package visibility maps subject types to sharing scopes and roles to
// moderation queues. Nothing here touches the network.
package visibility

import (
	"errors"

	"pamana/notes/internal/model"
)

var allScopes = []model.Scope{model.ScopePublic, model.ScopeSchool, model.ScopeCourse}

// AllowedScopes reports the scopes a note of the given subject type may
// carry. A nil type is unresolved and allows every scope.
func AllowedScopes(t *model.SubjectType) ([]model.Scope, bool) {
	if t == nil {
		return append([]model.Scope(nil), allScopes...), false
	}
	switch *t {
	case model.SubjectMajor:
		return []model.Scope{model.ScopeCourse}, true
	case model.SubjectGeneral:
		return []model.Scope{model.ScopePublic, model.ScopeSchool}, true
	default:
		return append([]model.Scope(nil), allScopes...), false
	}
}

func DefaultScope(t *model.SubjectType) model.Scope {
	if t != nil && *t == model.SubjectMajor {
		return model.ScopeCourse
	}
	return model.ScopeSchool
}

func IsAllowed(scope model.Scope, t *model.SubjectType) bool {
	scopes, _ := AllowedScopes(t)
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// EffectiveScopeOnSubjectChange keeps the current scope when the new type
// allows it and falls back to the type's default otherwise.
func EffectiveScopeOnSubjectChange(current model.Scope, t *model.SubjectType) model.Scope {
	if IsAllowed(current, t) {
		return current
	}
	return DefaultScope(t)
}

// ErrNoQueueAccess is returned for roles that may not see a moderation
// queue. Callers must not fetch anything after receiving it.
var ErrNoQueueAccess = errors.New("role has no moderation queue access")

// Queue describes which pending notes a moderator may act on.
type Queue struct {
	Unrestricted bool
	Course       string
}

func QueueScope(role model.Role, course string) (Queue, error) {
	switch role {
	case model.RoleAdmin:
		return Queue{Unrestricted: true}, nil
	case model.RoleModerator:
		return Queue{Course: course}, nil
	default:
		return Queue{}, ErrNoQueueAccess
	}
}

// Includes reports whether the note falls inside the queue. A restricted
// queue only matches notes whose subject belongs to the same course, so a
// moderator without a course sees nothing.
func (q Queue) Includes(note model.Note) bool {
	if q.Unrestricted {
		return true
	}
	return q.Course != "" && note.Course() == q.Course
}

// Viewer is who is looking at a note.
type Viewer struct {
	Authenticated bool
	SchoolID      string
	Course        string
	Role          model.Role
}

func (v Viewer) staff() bool {
	return v.Role == model.RoleModerator || v.Role == model.RoleAdmin
}

// CanView decides read access: approved public notes are open to anyone,
// school notes need a signed-in viewer and course notes a viewer from the
// same course. Unapproved notes are visible to their author and staff only.
func CanView(note model.Note, viewer Viewer) bool {
	if viewer.Authenticated && viewer.staff() {
		return true
	}
	if viewer.Authenticated && viewer.SchoolID != "" && viewer.SchoolID == note.Author {
		return true
	}
	if note.Status() != model.StatusApproved {
		return false
	}
	switch note.Visibility {
	case model.ScopePublic:
		return true
	case model.ScopeSchool:
		return viewer.Authenticated
	case model.ScopeCourse:
		return viewer.Authenticated && viewer.Course != "" && viewer.Course == note.Course()
	default:
		return false
	}
}
