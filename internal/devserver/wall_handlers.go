package devserver

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"pamana/notes/internal/model"
)

const (
	maxPostLength    = 5000
	maxCommentLength = 2000
)

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	posts, err := s.repo.ListPosts(r.Context(), claims.SchoolID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	flat, err := s.repo.ListWallComments(r.Context(), claims.SchoolID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	byPost := map[int64][]model.Comment{}
	for _, c := range flat {
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}
	for i := range posts {
		comments := byPost[posts[i].ID]
		posts[i].CommentsCount = len(comments)
		posts[i].Comments = markDeletable(buildThreads(comments), claims)
		posts[i].CanDelete = posts[i].Author.SchoolID == claims.SchoolID
	}
	writeJSON(w, http.StatusOK, posts)
}

type postRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content_required")
		return
	}
	if len(content) > maxPostLength {
		writeError(w, http.StatusBadRequest, "content_too_long")
		return
	}

	post, err := s.repo.CreatePost(r.Context(), model.Post{
		Author:    model.Author{SchoolID: claims.SchoolID},
		Content:   content,
		CreatedAt: s.now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	post.CanDelete = true
	post.Comments = []model.Comment{}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_post_id")
		return
	}
	post, err := s.repo.GetPost(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "post_not_found")
		return
	}
	if post.Author.SchoolID != claims.SchoolID {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}
	if err := s.repo.DeletePost(r.Context(), id); err != nil {
		s.writeRepoError(w, err, "post_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type likeResponse struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_post_id")
		return
	}
	liked, count, err := s.repo.TogglePostLike(r.Context(), claims.SchoolID, id)
	if err != nil {
		s.writeRepoError(w, err, "post_not_found")
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked, LikesCount: count})
}

type wallCommentRequest struct {
	Post    int64  `json:"post"`
	Parent  *int64 `json:"parent,omitempty"`
	Content string `json:"content"`
}

func (s *Server) handleCreateWallComment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	var req wallCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeError(w, http.StatusBadRequest, "content_required")
		return
	}
	if len(content) > maxCommentLength {
		writeError(w, http.StatusBadRequest, "content_too_long")
		return
	}

	created, err := s.repo.CreateWallComment(r.Context(), model.Comment{
		PostID:    req.Post,
		ParentID:  req.Parent,
		Author:    model.Author{SchoolID: claims.SchoolID},
		Content:   content,
		CreatedAt: s.now(),
	})
	if err != nil {
		s.writeRepoError(w, err, "post_not_found")
		return
	}
	created.CanDelete = true
	if created.ParentID == nil {
		created.Replies = []model.Comment{}
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleLikeComment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_comment_id")
		return
	}
	liked, count, err := s.repo.ToggleCommentLike(r.Context(), claims.SchoolID, id)
	if err != nil {
		s.writeRepoError(w, err, "comment_not_found")
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked, LikesCount: count})
}

// handleDeleteWallComment lets the author or staff remove a comment. Its
// replies go with it.
func (s *Server) handleDeleteWallComment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_comment_id")
		return
	}
	comment, err := s.repo.GetWallComment(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "comment_not_found")
		return
	}
	if comment.Author.SchoolID != claims.SchoolID && !isStaff(claims) {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}
	if err := s.repo.DeleteWallComment(r.Context(), id); err != nil {
		s.writeRepoError(w, err, "comment_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reportRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_comment_id")
		return
	}
	var req reportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	reason, ok := model.ParseReportReason(req.Reason)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_reason")
		return
	}

	err := s.repo.CreateReport(r.Context(), Report{
		ID:         uuid.NewString(),
		CommentID:  id,
		ReporterID: claims.SchoolID,
		Reason:     reason,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.writeRepoError(w, err, "comment_not_found")
		return
	}
	s.logger.Info("comment reported", "comment_id", id, "reason", reason)
	writeMessage(w, http.StatusCreated, "Report submitted")
}
