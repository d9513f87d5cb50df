// Package feed runs the social wall: posts, threaded comments, likes and
// reports. Creation is optimistic; likes and deletions wait for the server.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"pamana/notes/internal/gateway"
	"pamana/notes/internal/logging"
	"pamana/notes/internal/model"
	"pamana/notes/internal/optimistic"
)

const (
	PostsPath    = "/api/wall/posts/"
	CommentsPath = "/api/wall/comments/"
)

func postLikePath(id int64) string      { return fmt.Sprintf("/api/wall/posts/%d/like/", id) }
func postDeletePath(id int64) string    { return fmt.Sprintf("/api/wall/posts/%d/delete/", id) }
func commentLikePath(id int64) string   { return fmt.Sprintf("/api/wall/comments/%d/like/", id) }
func commentDeletePath(id int64) string { return fmt.Sprintf("/api/wall/comments/%d/delete/", id) }
func commentReportPath(id int64) string { return fmt.Sprintf("/api/wall/comments/%d/report/", id) }

var (
	// ErrNotDeletable means the server did not grant delete on the entity.
	ErrNotDeletable = errors.New("not allowed to delete")
	ErrNotFound     = errors.New("not found in feed")
)

type postNode struct {
	post   model.Post
	thread *optimistic.Thread
}

func newPostNode(p model.Post) *postNode {
	thread := optimistic.NewThread(p.Comments)
	p.Comments = nil
	return &postNode{post: p, thread: thread}
}

type Engine struct {
	gw     gateway.Doer
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	posts       *optimistic.List[*postNode]
	subscribers map[int]func([]model.Post)
	nextSub     int
	loading     int
	closed      bool
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrDefault(logger) }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(gw gateway.Doer, opts ...Option) *Engine {
	e := &Engine{
		gw:          gw,
		logger:      slog.Default(),
		now:         time.Now,
		posts:       optimistic.NewList[*postNode](nil),
		subscribers: map[int]func([]model.Post){},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.subscribers = map[int]func([]model.Post){}
	e.mu.Unlock()
}

func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading > 0
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func unsubscribes.
func (e *Engine) Subscribe(fn func([]model.Post)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) Posts() []model.Post {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() []model.Post {
	entries := e.posts.Entries()
	out := make([]model.Post, 0, len(entries))
	for _, entry := range entries {
		p := entry.Item.post
		p.LocalID = entry.LocalID
		p.Comments = entry.Item.thread.Snapshot()
		out = append(out, p)
	}
	return out
}

// mutate applies fn under the lock unless the engine is closed, then tells
// subscribers.
func (e *Engine) mutate(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fn()
	snapshot := e.snapshotLocked()
	subs := make([]func([]model.Post), 0, len(e.subscribers))
	for _, sub := range e.subscribers {
		subs = append(subs, sub)
	}
	e.mu.Unlock()
	for _, sub := range subs {
		sub(snapshot)
	}
}

func (e *Engine) Load(ctx context.Context) ([]model.Post, error) {
	e.mu.Lock()
	e.loading++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.loading--
		e.mu.Unlock()
	}()

	var posts []model.Post
	if err := e.gw.Do(ctx, http.MethodGet, PostsPath, nil, &posts); err != nil {
		return nil, errors.Wrap(err, "load wall")
	}
	nodes := make([]*postNode, 0, len(posts))
	for _, p := range posts {
		nodes = append(nodes, newPostNode(p))
	}
	e.mutate(func() { e.posts.Reset(nodes) })
	return e.Posts(), nil
}

type postRequest struct {
	Content string `json:"content" validate:"required,max=5000"`
}

type commentRequest struct {
	Post    int64  `json:"post" validate:"required"`
	Parent  *int64 `json:"parent,omitempty"`
	Content string `json:"content" validate:"required,max=2000"`
}

// CreatePost shows the post at the head of the feed right away and swaps in
// the server's version when it arrives. On failure the feed is restored.
func (e *Engine) CreatePost(ctx context.Context, author model.Author, content string) (model.Post, error) {
	req := postRequest{Content: strings.TrimSpace(content)}
	if err := model.Validate(req); err != nil {
		return model.Post{}, err
	}

	var handle optimistic.Handle
	e.mutate(func() {
		handle = e.posts.Prepend(newPostNode(model.Post{
			Author:    author,
			Content:   req.Content,
			CreatedAt: e.now(),
		}))
	})

	var created model.Post
	if err := e.gw.Do(ctx, http.MethodPost, PostsPath, req, &created); err != nil {
		e.mutate(func() { e.posts.Revert(handle) })
		return model.Post{}, errors.Wrap(err, "create post")
	}
	e.mutate(func() { e.posts.Confirm(handle, newPostNode(created)) })
	return created, nil
}

func (e *Engine) CreateComment(ctx context.Context, author model.Author, postID int64, content string) (model.Comment, error) {
	return e.createComment(ctx, author, commentRequest{Post: postID, Content: strings.TrimSpace(content)})
}

// CreateReply attaches a reply to a top-level comment. Replying to a reply
// attaches to that reply's parent so threads stay one level deep.
func (e *Engine) CreateReply(ctx context.Context, author model.Author, postID, parentID int64, content string) (model.Comment, error) {
	e.mu.Lock()
	if node := e.findPost(postID); node != nil {
		if parent, ok := node.thread.Find(parentID); ok && parent.ParentID != nil {
			parentID = *parent.ParentID
		}
	}
	e.mu.Unlock()
	return e.createComment(ctx, author, commentRequest{Post: postID, Parent: &parentID, Content: strings.TrimSpace(content)})
}

func (e *Engine) createComment(ctx context.Context, author model.Author, req commentRequest) (model.Comment, error) {
	if err := model.Validate(req); err != nil {
		return model.Comment{}, err
	}

	var (
		handle optimistic.Handle
		found  bool
	)
	e.mutate(func() {
		node := e.findPost(req.Post)
		if node == nil {
			return
		}
		local := model.Comment{PostID: req.Post, ParentID: req.Parent, Author: author, Content: req.Content, CreatedAt: e.now()}
		if req.Parent == nil {
			handle, found = node.thread.Add(local), true
			return
		}
		handle, found = node.thread.AddReply(*req.Parent, local)
	})
	if !found {
		return model.Comment{}, errors.Wrapf(ErrNotFound, "post %d", req.Post)
	}

	var created model.Comment
	if err := e.gw.Do(ctx, http.MethodPost, CommentsPath, req, &created); err != nil {
		e.mutate(func() {
			if node := e.findPost(req.Post); node != nil {
				node.thread.Revert(handle)
			}
		})
		return model.Comment{}, errors.Wrap(err, "create comment")
	}
	e.mutate(func() {
		if node := e.findPost(req.Post); node != nil && node.thread.Confirm(handle, created) {
			node.post.CommentsCount++
		}
	})
	return created, nil
}

type TargetKind int

const (
	PostTarget TargetKind = iota
	CommentTarget
)

// Target names a likeable entity. Replies are comments.
type Target struct {
	Kind TargetKind
	ID   int64
}

func Post(id int64) Target    { return Target{Kind: PostTarget, ID: id} }
func Comment(id int64) Target { return Target{Kind: CommentTarget, ID: id} }

type LikeState struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likes_count"`
}

// ToggleLike flips the viewer's like and takes both the flag and the count
// from the server response.
func (e *Engine) ToggleLike(ctx context.Context, target Target) (LikeState, error) {
	path := postLikePath(target.ID)
	if target.Kind == CommentTarget {
		path = commentLikePath(target.ID)
	}
	var state LikeState
	if err := e.gw.Do(ctx, http.MethodPost, path, nil, &state); err != nil {
		return LikeState{}, errors.Wrap(err, "toggle like")
	}
	e.mutate(func() {
		if target.Kind == PostTarget {
			e.posts.Update(postByID(target.ID), func(n *postNode) *postNode {
				n.post.Liked = state.Liked
				n.post.LikesCount = state.LikesCount
				return n
			})
			return
		}
		for _, node := range e.posts.Items() {
			if node.thread.Update(target.ID, func(c model.Comment) model.Comment {
				c.Liked = state.Liked
				c.LikesCount = state.LikesCount
				return c
			}) {
				return
			}
		}
	})
	return state, nil
}

// DeleteComment removes a comment or reply after the server confirms it.
// Only entities the server marked deletable are sent.
func (e *Engine) DeleteComment(ctx context.Context, id int64) error {
	e.mu.Lock()
	var target *model.Comment
	for _, node := range e.posts.Items() {
		if c, ok := node.thread.Find(id); ok {
			target = &c
			break
		}
	}
	e.mu.Unlock()
	if target == nil {
		return errors.Wrapf(ErrNotFound, "comment %d", id)
	}
	if !target.CanDelete {
		return ErrNotDeletable
	}

	if err := e.gw.Do(ctx, http.MethodDelete, commentDeletePath(id), nil, nil); err != nil {
		return errors.Wrap(err, "delete comment")
	}
	e.mutate(func() {
		for _, node := range e.posts.Items() {
			before := node.thread.Count()
			if node.thread.Remove(id) {
				node.post.CommentsCount -= before - node.thread.Count()
				if node.post.CommentsCount < 0 {
					node.post.CommentsCount = 0
				}
				return
			}
		}
	})
	return nil
}

func (e *Engine) DeletePost(ctx context.Context, id int64) error {
	e.mu.Lock()
	node := e.findPost(id)
	deletable := node != nil && node.post.CanDelete
	e.mu.Unlock()
	if node == nil {
		return errors.Wrapf(ErrNotFound, "post %d", id)
	}
	if !deletable {
		return ErrNotDeletable
	}
	if err := e.gw.Do(ctx, http.MethodDelete, postDeletePath(id), nil, nil); err != nil {
		return errors.Wrap(err, "delete post")
	}
	e.mutate(func() { e.posts.Remove(postByID(id)) })
	return nil
}

type reportRequest struct {
	Reason string `json:"reason" validate:"required,oneof=spam abusive inappropriate"`
}

// Report flags a comment. Nothing in the feed changes.
func (e *Engine) Report(ctx context.Context, commentID int64, reason string) error {
	req := reportRequest{Reason: normalizeReason(reason)}
	if err := model.Validate(req); err != nil {
		return err
	}
	if err := e.gw.Do(ctx, http.MethodPost, commentReportPath(commentID), req, nil); err != nil {
		return errors.Wrap(err, "report comment")
	}
	e.logger.Debug("comment reported", "comment_id", commentID, "reason", req.Reason)
	return nil
}

// ReportAsync validates synchronously and sends the report in the
// background. done, when set, receives the outcome.
func (e *Engine) ReportAsync(ctx context.Context, commentID int64, reason string, done func(error)) error {
	if err := model.Validate(reportRequest{Reason: normalizeReason(reason)}); err != nil {
		return err
	}
	go func() {
		err := e.Report(ctx, commentID, reason)
		if err != nil {
			e.logger.Warn("report failed", "comment_id", commentID, "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func normalizeReason(reason string) string {
	return strings.ToLower(strings.TrimSpace(reason))
}

func (e *Engine) findPost(id int64) *postNode {
	node, ok := e.posts.Find(postByID(id))
	if !ok {
		return nil
	}
	return node
}

func postByID(id int64) func(*postNode) bool {
	return func(n *postNode) bool { return n.post.ID == id }
}
