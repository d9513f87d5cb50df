package model

import (
	"strings"
	"time"
)

type Scope string

const (
	ScopePublic Scope = "public"
	ScopeSchool Scope = "school"
	ScopeCourse Scope = "course"
)

func ParseScope(value string) (Scope, bool) {
	switch Scope(strings.TrimSpace(strings.ToLower(value))) {
	case ScopePublic:
		return ScopePublic, true
	case ScopeSchool:
		return ScopeSchool, true
	case ScopeCourse:
		return ScopeCourse, true
	default:
		return "", false
	}
}

type SubjectType string

const (
	SubjectGeneral SubjectType = "General"
	SubjectMajor   SubjectType = "Major"
)

func ParseSubjectType(value string) (SubjectType, bool) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "general":
		return SubjectGeneral, true
	case "major":
		return SubjectMajor, true
	default:
		return "", false
	}
}

type Role string

const (
	RoleStudent   Role = "student"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
	RoleUnknown   Role = ""
)

// ParseRole never fails; anything outside the three known roles is RoleUnknown.
func ParseRole(value string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(value))) {
	case RoleStudent:
		return RoleStudent
	case RoleModerator:
		return RoleModerator
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

type Subject struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsMajor   bool   `json:"is_major"`
	IsGeneral bool   `json:"is_general"`
	Course    string `json:"course,omitempty"`
}

// Type derives the subject type from the wire flags. A subject without a
// course is always General.
func (s Subject) Type() SubjectType {
	if s.IsMajor && s.Course != "" {
		return SubjectMajor
	}
	return SubjectGeneral
}

// TypeRef returns a pointer form for the visibility resolver, nil when the
// subject is unset.
func (s *Subject) TypeRef() *SubjectType {
	if s == nil || (s.ID == 0 && s.Name == "") {
		return nil
	}
	t := s.Type()
	return &t
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type Note struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	File            string    `json:"file,omitempty"`
	Visibility      Scope     `json:"visibility"`
	Subject         *Subject  `json:"subject,omitempty"`
	Author          string    `json:"author_school_id"`
	IsApproved      bool      `json:"is_approved"`
	IsRejected      bool      `json:"is_rejected"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	UploadedAt      time.Time `json:"uploaded_at"`
	Saved           bool      `json:"is_saved,omitempty"`
	LikesCount      int       `json:"likes_count"`
	Liked           bool      `json:"is_liked,omitempty"`
}

// Status is derived from the two moderation flags; it is never stored.
func (n Note) Status() Status {
	switch {
	case n.IsApproved:
		return StatusApproved
	case n.IsRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

func (n Note) Course() string {
	if n.Subject == nil {
		return ""
	}
	return n.Subject.Course
}

func (n Note) Validate() error {
	if n.IsApproved && n.IsRejected {
		return &ValidationError{Field: "status", Reason: "note cannot be approved and rejected"}
	}
	if n.IsRejected && strings.TrimSpace(n.RejectionReason) == "" {
		return &ValidationError{Field: "rejection_reason", Reason: "rejected note requires a reason"}
	}
	if n.Subject != nil {
		switch n.Subject.Type() {
		case SubjectMajor:
			if n.Visibility != ScopeCourse {
				return &ValidationError{Field: "visibility", Reason: "major subject notes are course only"}
			}
		case SubjectGeneral:
			if n.Visibility == ScopeCourse {
				return &ValidationError{Field: "visibility", Reason: "general subject notes cannot be course only"}
			}
		}
	}
	return nil
}

func (n Note) Approve() Note {
	n.IsApproved = true
	n.IsRejected = false
	n.RejectionReason = ""
	return n
}

func (n Note) Reject(reason string) Note {
	n.IsApproved = false
	n.IsRejected = true
	n.RejectionReason = strings.TrimSpace(reason)
	return n
}

func (n Note) ResetToPending() Note {
	n.IsApproved = false
	n.IsRejected = false
	n.RejectionReason = ""
	return n
}

type Author struct {
	SchoolID  string `json:"school_id"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Comment struct {
	ID         int64     `json:"id"`
	PostID     int64     `json:"post,omitempty"`
	ParentID   *int64    `json:"parent"`
	Author     Author    `json:"user"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	LikesCount int       `json:"likes_count"`
	Liked      bool      `json:"liked"`
	CanDelete  bool      `json:"can_delete"`
	Replies    []Comment `json:"replies"`

	// LocalID marks a client-side optimistic entity until the server confirms it.
	LocalID string `json:"-"`
}

func (c Comment) IsLocal() bool {
	return c.LocalID != ""
}

type Post struct {
	ID              int64     `json:"id"`
	Author          Author    `json:"user"`
	Content         string    `json:"content"`
	RenderedContent string    `json:"rendered_content,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LikesCount      int       `json:"likes_count"`
	Liked           bool      `json:"liked"`
	CommentsCount   int       `json:"comments_count"`
	CanDelete       bool      `json:"can_delete"`
	Comments        []Comment `json:"comments"`

	LocalID string `json:"-"`
}

func (p Post) IsLocal() bool {
	return p.LocalID != ""
}

type ReportReason string

const (
	ReportSpam          ReportReason = "spam"
	ReportAbusive       ReportReason = "abusive"
	ReportInappropriate ReportReason = "inappropriate"
)

func ParseReportReason(value string) (ReportReason, bool) {
	switch ReportReason(strings.TrimSpace(strings.ToLower(value))) {
	case ReportSpam:
		return ReportSpam, true
	case ReportAbusive:
		return ReportAbusive, true
	case ReportInappropriate:
		return ReportInappropriate, true
	default:
		return "", false
	}
}

type Credential struct {
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
}

func (c Credential) Empty() bool {
	return c.Access == "" && c.Refresh == ""
}
