package devserver

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"pamana/notes/internal/auth"
	"pamana/notes/internal/model"
	"pamana/notes/internal/visibility"
)

const maxUploadMemory = 32 << 20

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.repo.ListSubjects(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, subjects)
}

// reviewQueue returns the course filter for the caller. Moderators are
// pinned to their own course whatever the query string says.
func reviewQueue(r *http.Request) visibility.Queue {
	claims := claimsFromContext(r.Context())
	queue, _ := visibility.QueueScope(roleOf(claims), courseOf(claims))
	if queue.Unrestricted {
		if course := strings.TrimSpace(r.URL.Query().Get("course")); course != "" {
			return visibility.Queue{Course: course}
		}
	}
	return queue
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request, statuses ...model.Status) {
	queue := reviewQueue(r)
	if !queue.Unrestricted && queue.Course == "" {
		writeJSON(w, http.StatusOK, []model.Note{})
		return
	}
	viewer := claimsFromContext(r.Context()).UserID
	notes, err := s.repo.ListNotes(r.Context(), NoteQuery{Statuses: statuses, Course: queue.Course, Viewer: viewer})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	s.listQueue(w, r, model.StatusPending)
}

func (s *Server) handleModerated(w http.ResponseWriter, r *http.Request) {
	s.listQueue(w, r, model.StatusApproved, model.StatusRejected)
}

// reviewable loads a note the caller may moderate, writing the error
// response itself when it may not.
func (s *Server) reviewable(w http.ResponseWriter, r *http.Request) (model.Note, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_note_id")
		return model.Note{}, false
	}
	note, err := s.repo.GetNote(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return model.Note{}, false
	}
	claims := claimsFromContext(r.Context())
	queue, _ := visibility.QueueScope(roleOf(claims), courseOf(claims))
	if !queue.Includes(note) {
		writeError(w, http.StatusForbidden, "outside_course")
		return model.Note{}, false
	}
	return note, true
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	note, ok := s.reviewable(w, r)
	if !ok {
		return
	}
	if err := s.repo.UpdateNote(r.Context(), note.Approve()); err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	s.logger.Info("note approved", "note_id", note.ID, "by", claimsFromContext(r.Context()).SchoolID)
	writeMessage(w, http.StatusOK, "Note approved successfully")
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "Rejection reason is required")
		return
	}
	note, ok := s.reviewable(w, r)
	if !ok {
		return
	}
	if err := s.repo.UpdateNote(r.Context(), note.Reject(req.Reason)); err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	s.logger.Info("note rejected", "note_id", note.ID, "by", claimsFromContext(r.Context()).SchoolID)
	writeMessage(w, http.StatusOK, "Note rejected")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "title_required")
		return
	}
	subjectID, err := strconv.ParseInt(r.FormValue("subject"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "subject_required")
		return
	}
	subject, err := s.repo.GetSubject(r.Context(), subjectID)
	if err != nil {
		s.writeRepoError(w, err, "subject_not_found")
		return
	}

	scope := visibility.DefaultScope(subject.TypeRef())
	if raw := r.FormValue("visibility"); raw != "" {
		parsed, ok := model.ParseScope(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_visibility")
			return
		}
		scope = parsed
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()
	stored, err := storedFileName(file, header)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}

	note := model.Note{
		Title:       title,
		Description: r.FormValue("description"),
		File:        stored,
		Visibility:  scope,
		Subject:     &subject,
		Author:      claims.SchoolID,
		UploadedAt:  s.now(),
	}
	if err := note.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "visibility_not_allowed")
		return
	}
	created, err := s.repo.CreateNote(r.Context(), note)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.logger.Info("note uploaded", "note_id", created.ID, "author", created.Author, "visibility", created.Visibility)
	writeJSON(w, http.StatusCreated, created)
}

// storedFileName drains the upload and names it the way the note storage
// does. Contents are not kept by the dev backend.
func storedFileName(file multipart.File, header *multipart.FileHeader) (string, error) {
	n, err := io.Copy(io.Discard, file)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errors.New("empty file")
	}
	return "notes/" + uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename)), nil
}

func (s *Server) handleMyNotes(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	notes, err := s.repo.ListNotes(r.Context(), NoteQuery{Author: claims.SchoolID, Viewer: claims.UserID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	// newest first
	for i, j := 0, len(notes)-1; i < j; i, j = i+1, j-1 {
		notes[i], notes[j] = notes[j], notes[i]
	}
	writeJSON(w, http.StatusOK, notes)
}

// handleUpdateNote applies an author's edits and sends the note back to
// review.
func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_note_id")
		return
	}
	note, err := s.repo.GetNote(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	if note.Author != claims.SchoolID {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	if values, ok := r.Form["title"]; ok {
		title := strings.TrimSpace(firstValue(values))
		if title == "" {
			writeError(w, http.StatusBadRequest, "title_required")
			return
		}
		note.Title = title
	}
	if values, ok := r.Form["description"]; ok {
		note.Description = firstValue(values)
	}
	if file, header, err := r.FormFile("file"); err == nil {
		stored, err := storedFileName(file, header)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "file_required")
			return
		}
		note.File = stored
	}

	note = note.ResetToPending()
	if err := s.repo.UpdateNote(r.Context(), note); err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// handleDeleteNote removes one of the caller's own notes, whatever its
// moderation state.
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_note_id")
		return
	}
	note, err := s.repo.GetNote(r.Context(), id)
	if err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	if note.Author != claims.SchoolID {
		writeError(w, http.StatusForbidden, "not_owner")
		return
	}
	if err := s.repo.DeleteNote(r.Context(), id); err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	s.logger.Info("note deleted", "note_id", id, "author", claims.SchoolID)
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard counts the caller's notes per moderation state.
type Dashboard struct {
	MyNotes  int `json:"my_notes"`
	Approved int `json:"approved"`
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	notes, err := s.repo.ListNotes(r.Context(), NoteQuery{Author: claims.SchoolID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	dash := Dashboard{MyNotes: len(notes)}
	for _, n := range notes {
		switch n.Status() {
		case model.StatusApproved:
			dash.Approved++
		case model.StatusRejected:
			dash.Rejected++
		default:
			dash.Pending++
		}
	}
	writeJSON(w, http.StatusOK, dash)
}

// handlePublicNotes needs no credentials: approved public notes only,
// newest first.
func (s *Server) handlePublicNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.repo.ListNotes(r.Context(), NoteQuery{
		Statuses:   []model.Status{model.StatusApproved},
		Visibility: model.ScopePublic,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	for i, j := 0, len(notes)-1; i < j; i, j = i+1, j-1 {
		notes[i], notes[j] = notes[j], notes[i]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(notes), "notes": notes})
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	notes, err := s.repo.SavedNotes(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	viewer := viewerOf(claims)
	visible := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if visibility.CanView(n, viewer) {
			n.Saved = true
			visible = append(visible, n)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(visible), "notes": visible})
}

// visibleNote loads a note and hides it from viewers who may not read it.
func (s *Server) visibleNote(w http.ResponseWriter, r *http.Request) (model.Note, *auth.Claims, bool) {
	claims := claimsFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_note_id")
		return model.Note{}, nil, false
	}
	note, err := s.repo.GetNote(r.Context(), id)
	if err == nil && !visibility.CanView(note, viewerOf(claims)) {
		err = ErrNotFound
	}
	if err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return model.Note{}, nil, false
	}
	return note, claims, true
}

func (s *Server) handleToggleSave(w http.ResponseWriter, r *http.Request) {
	note, claims, ok := s.visibleNote(w, r)
	if !ok {
		return
	}
	saved, err := s.repo.ToggleSave(r.Context(), claims.UserID, note.ID)
	if err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

func (s *Server) handleToggleNoteLike(w http.ResponseWriter, r *http.Request) {
	note, claims, ok := s.visibleNote(w, r)
	if !ok {
		return
	}
	liked, count, err := s.repo.ToggleNoteLike(r.Context(), claims.UserID, note.ID)
	if err != nil {
		s.writeRepoError(w, err, "note_not_found")
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked, LikesCount: count})
}

func (s *Server) handleNoteComments(w http.ResponseWriter, r *http.Request) {
	note, claims, ok := s.visibleNote(w, r)
	if !ok {
		return
	}
	flat, err := s.repo.ListNoteComments(r.Context(), note.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, markDeletable(buildThreads(flat), claims))
}

type noteCommentRequest struct {
	Content string `json:"content"`
	Parent  *int64 `json:"parent,omitempty"`
}

func (s *Server) handleCreateNoteComment(w http.ResponseWriter, r *http.Request) {
	note, claims, ok := s.visibleNote(w, r)
	if !ok {
		return
	}
	var req noteCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	created, err := s.addNoteComment(r, note.ID, claims, req)
	if err != nil {
		s.writeRepoError(w, err, "parent_not_found")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

var errEmptyContent = errors.New("content_required")

// addNoteComment stores the comment and fans it out to the note's live
// subscribers. Both the REST and websocket paths go through here.
func (s *Server) addNoteComment(r *http.Request, noteID int64, claims *auth.Claims, req noteCommentRequest) (model.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return model.Comment{}, errEmptyContent
	}
	created, err := s.repo.CreateNoteComment(r.Context(), noteID, model.Comment{
		ParentID:  req.Parent,
		Author:    model.Author{SchoolID: claims.SchoolID},
		Content:   content,
		CreatedAt: s.now(),
	})
	if err != nil {
		return model.Comment{}, err
	}
	if created.ParentID == nil {
		created.Replies = []model.Comment{}
	}
	s.hub.Broadcast(noteID, streamEvent{Event: "created", Comment: &created})
	created.CanDelete = true
	return created, nil
}

// markDeletable sets can_delete for the viewer: authors and staff.
func markDeletable(comments []model.Comment, claims *auth.Claims) []model.Comment {
	staff := isStaff(claims)
	for i := range comments {
		comments[i].CanDelete = staff || comments[i].Author.SchoolID == claims.SchoolID
		if comments[i].Replies != nil {
			markDeletable(comments[i].Replies, claims)
		}
	}
	return comments
}

func (s *Server) writeRepoError(w http.ResponseWriter, err error, notFoundCode string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundCode)
	case errors.Is(err, errEmptyContent):
		writeError(w, http.StatusBadRequest, errEmptyContent.Error())
	default:
		s.logger.Error("repository error", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}
