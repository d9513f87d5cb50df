package notes

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"pamana/notes/internal/model"
)

const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// Event is one message of the live comment stream.
type Event struct {
	Kind      string         `json:"event"`
	Comment   *model.Comment `json:"comment,omitempty"`
	CommentID int64          `json:"comment_id,omitempty"`
}

var ErrLiveDisabled = errors.New("live comments are not configured")

func livePath(noteID int64) string { return fmt.Sprintf("/ws/notes/%d/comments/", noteID) }

// LiveURL turns the backend base URL into the websocket URL of a note's
// comment stream.
func LiveURL(baseURL string, noteID int64, access string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + livePath(noteID))
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", access)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Live follows the comment stream of a note until ctx ends or the server
// closes the connection. Each event is merged into the local thread before
// handler sees it.
func (l *Library) Live(ctx context.Context, noteID int64, handler func(Event)) error {
	if l.liveURL == "" || l.store == nil {
		return ErrLiveDisabled
	}
	cred, ok, err := l.store.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "load credentials")
	}
	if !ok || cred.Access == "" {
		return errors.New("not logged in")
	}
	target, err := LiveURL(l.liveURL, noteID, cred.Access)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return errors.Wrap(err, "connect comment stream")
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	l.logger.Debug("comment stream connected", "note_id", noteID)
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read comment stream")
		}
		l.update(func() {
			thread := l.thread(noteID)
			switch ev.Kind {
			case EventCreated:
				if ev.Comment != nil {
					thread.Insert(*ev.Comment)
				}
			case EventDeleted:
				thread.Remove(ev.CommentID)
			}
		})
		if handler != nil {
			handler(ev)
		}
	}
}

// ApplyEvent merges a stream event into a comment list. Created comments
// already present, or replying to a comment not in the list, are ignored.
// Replies attach under their top-level comment.
func ApplyEvent(comments []model.Comment, ev Event) []model.Comment {
	out := make([]model.Comment, len(comments))
	for i, c := range comments {
		c.Replies = append([]model.Comment(nil), c.Replies...)
		out[i] = c
	}

	switch ev.Kind {
	case EventCreated:
		if ev.Comment == nil || contains(out, ev.Comment.ID) {
			return out
		}
		created := *ev.Comment
		created.Replies = nil
		if created.ParentID == nil {
			return append(out, created)
		}
		for i := range out {
			if out[i].ID == *created.ParentID {
				out[i].Replies = append(out[i].Replies, created)
				return out
			}
			for _, r := range out[i].Replies {
				if r.ID == *created.ParentID {
					out[i].Replies = append(out[i].Replies, created)
					return out
				}
			}
		}
		// parent not loaded here
		return out
	case EventDeleted:
		kept := out[:0]
		for _, c := range out {
			if c.ID == ev.CommentID {
				continue
			}
			replies := c.Replies[:0]
			for _, r := range c.Replies {
				if r.ID != ev.CommentID {
					replies = append(replies, r)
				}
			}
			c.Replies = replies
			kept = append(kept, c)
		}
		return kept
	}
	return out
}

func contains(comments []model.Comment, id int64) bool {
	if id == 0 {
		return false
	}
	for _, c := range comments {
		if c.ID == id {
			return true
		}
		for _, r := range c.Replies {
			if r.ID == id {
				return true
			}
		}
	}
	return false
}
