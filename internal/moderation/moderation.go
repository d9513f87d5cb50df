// Package moderation drives the review queue: loading pending notes for a
// reviewer and moving them to approved or rejected.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"pamana/notes/internal/gateway"
	"pamana/notes/internal/logging"
	"pamana/notes/internal/model"
	"pamana/notes/internal/visibility"
)

const (
	PendingPath   = "/notes/api/pending/"
	ModeratedPath = "/notes/api/moderated/"
)

func approvePath(id int64) string { return fmt.Sprintf("/notes/api/approve/%d/", id) }
func rejectPath(id int64) string  { return fmt.Sprintf("/notes/api/reject/%d/", id) }
func notePath(id int64) string    { return fmt.Sprintf("/notes/api/student/notes/%d/", id) }

// ErrNotAuthor is returned when someone other than the author tries to
// resubmit a note.
var ErrNotAuthor = model.ErrNotAuthor

// Engine owns the pending and moderated lists of one review screen.
type Engine struct {
	gw     gateway.Doer
	logger *slog.Logger

	mu        sync.Mutex
	pending   []model.Note
	moderated []model.Note
	loading   int
	closed    bool
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrDefault(logger) }
}

func New(gw gateway.Doer, opts ...Option) *Engine {
	e := &Engine{gw: gw, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close detaches the engine from its screen. Responses that arrive later
// are dropped instead of mutating state.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading > 0
}

func (e *Engine) Pending() []model.Note {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Note(nil), e.pending...)
}

func (e *Engine) Moderated() []model.Note {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Note(nil), e.moderated...)
}

type Stats struct {
	Pending  int
	Approved int
	Rejected int
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{Pending: len(e.pending)}
	for _, n := range e.moderated {
		switch n.Status() {
		case model.StatusApproved:
			s.Approved++
		case model.StatusRejected:
			s.Rejected++
		}
	}
	return s
}

// LoadQueue fetches the pending notes the role may act on. Roles without a
// queue get visibility.ErrNoQueueAccess before any request is made. The
// backend's order is preserved.
func (e *Engine) LoadQueue(ctx context.Context, role model.Role, course string) ([]model.Note, error) {
	queue, err := visibility.QueueScope(role, course)
	if err != nil {
		return nil, err
	}
	notes, err := e.fetch(ctx, PendingPath, queue)
	if err != nil {
		return nil, err
	}
	pending := filter(notes, func(n model.Note) bool {
		return n.Status() == model.StatusPending && queue.Includes(n)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.pending = pending
	}
	return append([]model.Note(nil), pending...), nil
}

// LoadModerated fetches approved and rejected notes within the queue scope.
func (e *Engine) LoadModerated(ctx context.Context, role model.Role, course string) ([]model.Note, error) {
	queue, err := visibility.QueueScope(role, course)
	if err != nil {
		return nil, err
	}
	notes, err := e.fetch(ctx, ModeratedPath, queue)
	if err != nil {
		return nil, err
	}
	moderated := filter(notes, func(n model.Note) bool {
		return n.Status() != model.StatusPending && queue.Includes(n)
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.moderated = moderated
	}
	return append([]model.Note(nil), moderated...), nil
}

func (e *Engine) fetch(ctx context.Context, path string, queue visibility.Queue) ([]model.Note, error) {
	e.setLoading(1)
	defer e.setLoading(-1)

	if !queue.Unrestricted && queue.Course != "" {
		path += "?" + url.Values{"course": {queue.Course}}.Encode()
	}
	var notes []model.Note
	if err := e.gw.Do(ctx, http.MethodGet, path, nil, &notes); err != nil {
		return nil, err
	}
	valid := notes[:0]
	for _, n := range notes {
		if err := n.Validate(); err != nil {
			e.logger.Warn("dropping inconsistent note", "note_id", n.ID, "error", err)
			continue
		}
		valid = append(valid, n)
	}
	return valid, nil
}

func (e *Engine) setLoading(delta int) {
	e.mu.Lock()
	e.loading += delta
	e.mu.Unlock()
}

// Approve moves a note to approved. Approving a note already known to be
// approved succeeds without a request.
func (e *Engine) Approve(ctx context.Context, id int64) error {
	if e.isApproved(id) {
		return nil
	}
	if err := e.gw.Do(ctx, http.MethodPost, approvePath(id), nil, nil); err != nil {
		return errors.Wrapf(err, "approve note %d", id)
	}
	e.settle(id, func(n model.Note) model.Note { return n.Approve() })
	e.logger.Debug("note approved", "note_id", id)
	return nil
}

// Reject needs a non-blank reason. A blank one fails locally and leaves the
// note untouched.
func (e *Engine) Reject(ctx context.Context, id int64, reason string) error {
	if err := model.RequireText("reason", reason); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	body := map[string]string{"reason": reason}
	if err := e.gw.Do(ctx, http.MethodPost, rejectPath(id), body, nil); err != nil {
		return errors.Wrapf(err, "reject note %d", id)
	}
	e.settle(id, func(n model.Note) model.Note { return n.Reject(reason) })
	e.logger.Debug("note rejected", "note_id", id)
	return nil
}

// BulkResult reports a batch approval. Every id lands in exactly one of the
// two fields.
type BulkResult struct {
	Approved []int64
	Failed   map[int64]error
}

func (r BulkResult) FailedIDs() []int64 {
	ids := make([]int64, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// BulkApprove approves each id in turn and keeps going past failures.
func (e *Engine) BulkApprove(ctx context.Context, ids []int64) BulkResult {
	result := BulkResult{Failed: map[int64]error{}}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if err := e.Approve(ctx, id); err != nil {
			e.logger.Warn("bulk approve failed", "note_id", id, "error", err)
			result.Failed[id] = err
			continue
		}
		result.Approved = append(result.Approved, id)
	}
	return result
}

// Resubmission carries the fields an author changes. Nil fields are kept.
type Resubmission struct {
	Title       *string
	Description *string
	File        *gateway.FilePart
}

// Resubmit sends the author's edits and puts the note back to pending with
// no rejection reason.
func (e *Engine) Resubmit(ctx context.Context, author string, note model.Note, changes Resubmission) (model.Note, error) {
	if author == "" || note.Author != author {
		return model.Note{}, ErrNotAuthor
	}
	if changes.Title != nil {
		if err := model.RequireText("title", *changes.Title); err != nil {
			return model.Note{}, err
		}
	}

	fields := map[string]string{}
	if changes.Title != nil {
		fields["title"] = strings.TrimSpace(*changes.Title)
	}
	if changes.Description != nil {
		fields["description"] = *changes.Description
	}
	req, err := gateway.MultipartRequest(http.MethodPatch, notePath(note.ID), fields, changes.File)
	if err != nil {
		return model.Note{}, err
	}
	resp, err := e.gw.Send(ctx, req)
	if err != nil {
		return model.Note{}, errors.Wrapf(err, "resubmit note %d", note.ID)
	}

	updated := note.ResetToPending()
	if t, ok := fields["title"]; ok {
		updated.Title = t
	}
	if d, ok := fields["description"]; ok {
		updated.Description = d
	}
	var confirmed model.Note
	if err := resp.Decode(&confirmed); err == nil && confirmed.ID == updated.ID {
		if confirmed.File != "" {
			updated.File = confirmed.File
		}
		if !confirmed.UploadedAt.IsZero() {
			updated.UploadedAt = confirmed.UploadedAt
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.moderated = remove(e.moderated, note.ID)
		e.pending = replace(e.pending, updated)
	}
	return updated, nil
}

func (e *Engine) isApproved(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.moderated {
		if n.ID == id {
			return n.Status() == model.StatusApproved
		}
	}
	return false
}

// settle moves a note out of the pending list into the moderated list,
// keeping one entry per id.
func (e *Engine) settle(id int64, transition func(model.Note) model.Note) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for i, n := range e.moderated {
		if n.ID == id {
			e.moderated[i] = transition(n)
			e.pending = remove(e.pending, id)
			return
		}
	}
	// A note this engine never loaded stays out of the moderated list.
	for _, n := range e.pending {
		if n.ID == id {
			e.pending = remove(e.pending, id)
			e.moderated = append(e.moderated, transition(n))
			return
		}
	}
}

func filter(notes []model.Note, keep func(model.Note) bool) []model.Note {
	out := make([]model.Note, 0, len(notes))
	for _, n := range notes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

func remove(notes []model.Note, id int64) []model.Note {
	return filter(notes, func(n model.Note) bool { return n.ID != id })
}

// replace swaps the note in place when present.
func replace(notes []model.Note, note model.Note) []model.Note {
	out := append([]model.Note(nil), notes...)
	for i, n := range out {
		if n.ID == note.ID {
			out[i] = note
		}
	}
	return out
}
