package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pamana/notes/internal/auth"
	"pamana/notes/internal/model"
	"pamana/notes/internal/visibility"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

// streamEvent is what subscribers of a note's comment stream receive.
type streamEvent struct {
	Event     string         `json:"event"`
	Comment   *model.Comment `json:"comment,omitempty"`
	CommentID int64          `json:"comment_id,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// streamAction is what a subscriber may send.
type streamAction struct {
	Action    string `json:"action"`
	Content   string `json:"content,omitempty"`
	Parent    *int64 `json:"parent,omitempty"`
	CommentID int64  `json:"comment_id,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps one room per note. A subscriber that cannot keep up is dropped
// rather than slowing the room down.
type Hub struct {
	mu     sync.Mutex
	rooms  map[int64]map[*subscriber]struct{}
	closed bool
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{rooms: map[int64]map[*subscriber]struct{}{}, logger: logger}
}

func (h *Hub) join(noteID int64, sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	room, ok := h.rooms[noteID]
	if !ok {
		room = map[*subscriber]struct{}{}
		h.rooms[noteID] = room
	}
	room[sub] = struct{}{}
	return true
}

func (h *Hub) leave(noteID int64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(noteID, sub)
}

func (h *Hub) dropLocked(noteID int64, sub *subscriber) {
	room, ok := h.rooms[noteID]
	if !ok {
		return
	}
	if _, ok := room[sub]; !ok {
		return
	}
	delete(room, sub)
	close(sub.send)
	if len(room) == 0 {
		delete(h.rooms, noteID)
	}
}

// Broadcast encodes the event once and queues it for every subscriber of
// the note.
func (h *Hub) Broadcast(noteID int64, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode stream event", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.rooms[noteID] {
		select {
		case sub.send <- payload:
		default:
			h.logger.Warn("dropping slow subscriber", "note_id", noteID)
			h.dropLocked(noteID, sub)
		}
	}
}

// Subscribers reports how many streams follow a note.
func (h *Hub) Subscribers(noteID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[noteID])
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for noteID, room := range h.rooms {
		for sub := range room {
			h.dropLocked(noteID, sub)
		}
	}
}

// handleCommentStream upgrades to a websocket. Browsers cannot set headers
// on the upgrade, so the access token travels in the query string.
func (s *Server) handleCommentStream(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_note_id")
		return
	}
	note, err := s.repo.GetNote(r.Context(), id)
	if err != nil || !visibility.CanView(note, viewerOf(claims)) {
		writeError(w, http.StatusNotFound, "note_not_found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.join(note.ID, sub) {
		_ = conn.Close()
		return
	}
	s.logger.Debug("comment stream opened", "note_id", note.ID, "school_id", claims.SchoolID)

	go s.writePump(sub)
	s.readPump(r, note.ID, claims, sub)
}

func (s *Server) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = sub.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(r *http.Request, noteID int64, claims *auth.Claims, sub *subscriber) {
	defer s.hub.leave(noteID, sub)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// the upgrade hijacks the connection, so the request context is
	// detached from it
	req := r.WithContext(context.WithoutCancel(r.Context()))
	for {
		var action streamAction
		if err := sub.conn.ReadJSON(&action); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("comment stream closed", "note_id", noteID, "error", err)
			}
			return
		}
		if err := s.applyAction(req, noteID, claims, action); err != nil {
			s.reply(noteID, sub, streamEvent{Event: "error", Message: err.Error()})
		}
	}
}

var errUnknownAction = errors.New("unknown action")

func (s *Server) applyAction(r *http.Request, noteID int64, claims *auth.Claims, action streamAction) error {
	switch action.Action {
	case "create":
		_, err := s.addNoteComment(r, noteID, claims, noteCommentRequest{Content: action.Content, Parent: action.Parent})
		return err
	case "delete":
		comment, err := s.noteComment(r, noteID, action.CommentID)
		if err != nil {
			return err
		}
		if comment.Author.SchoolID != claims.SchoolID && !isStaff(claims) {
			return errors.New("not_owner")
		}
		if err := s.repo.DeleteNoteComment(r.Context(), action.CommentID); err != nil {
			return err
		}
		s.hub.Broadcast(noteID, streamEvent{Event: "deleted", CommentID: action.CommentID})
		return nil
	default:
		return errUnknownAction
	}
}

// noteComment finds a comment inside the note's own thread.
func (s *Server) noteComment(r *http.Request, noteID, commentID int64) (model.Comment, error) {
	flat, err := s.repo.ListNoteComments(r.Context(), noteID)
	if err != nil {
		return model.Comment{}, err
	}
	for _, c := range flat {
		if c.ID == commentID {
			return c, nil
		}
	}
	return model.Comment{}, ErrNotFound
}

// reply sends an event to one subscriber only.
func (s *Server) reply(noteID int64, sub *subscriber, event streamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.rooms[noteID][sub]; !ok {
		return
	}
	select {
	case sub.send <- payload:
	default:
	}
}
