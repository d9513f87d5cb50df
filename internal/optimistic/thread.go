package optimistic

import "pamana/notes/internal/model"

type commentNode struct {
	comment model.Comment
	replies *List[model.Comment]
}

// Thread is a comment list with exactly one level of replies.
type Thread struct {
	comments *List[*commentNode]
}

// NewThread builds a thread from server data. Replies nested deeper than
// one level are lifted onto their top-level comment.
func NewThread(comments []model.Comment) *Thread {
	t := &Thread{comments: NewList[*commentNode](nil)}
	t.Reset(comments)
	return t
}

func (t *Thread) Reset(comments []model.Comment) {
	nodes := make([]*commentNode, 0, len(comments))
	for _, c := range comments {
		nodes = append(nodes, newNode(c))
	}
	t.comments.Reset(nodes)
}

func newNode(c model.Comment) *commentNode {
	replies := flatten(c.Replies)
	c.Replies = nil
	return &commentNode{comment: c, replies: NewList(replies)}
}

func flatten(replies []model.Comment) []model.Comment {
	var out []model.Comment
	for _, r := range replies {
		nested := r.Replies
		r.Replies = nil
		out = append(out, r)
		out = append(out, flatten(nested)...)
	}
	return out
}

func (t *Thread) Add(c model.Comment) Handle {
	return t.comments.Append(newNode(c))
}

// AddReply appends a pending reply under a confirmed top-level comment.
func (t *Thread) AddReply(parentID int64, reply model.Comment) (Handle, bool) {
	node := t.node(parentID)
	if node == nil {
		return Handle{}, false
	}
	reply.Replies = nil
	return node.replies.Append(reply), true
}

// Insert adds a confirmed comment, or a reply under its parent, unless a
// comment with the same id is already there.
func (t *Thread) Insert(c model.Comment) bool {
	if _, ok := t.Find(c.ID); ok && c.ID != 0 {
		return false
	}
	if c.ParentID == nil {
		t.comments.Push(newNode(c))
		return true
	}
	parentID := *c.ParentID
	if reply, ok := t.Find(parentID); ok && reply.ParentID != nil {
		parentID = *reply.ParentID
	}
	node := t.node(parentID)
	if node == nil {
		return false
	}
	c.Replies = nil
	node.replies.Push(c)
	return true
}

// Confirm swaps a pending entry for the server's version. When the server
// version already arrived by other means the pending entry is dropped.
func (t *Thread) Confirm(h Handle, c model.Comment) bool {
	if _, ok := t.Find(c.ID); ok && c.ID != 0 {
		return t.Revert(h)
	}
	if t.comments.Has(h) {
		return t.comments.Confirm(h, newNode(c))
	}
	c.Replies = nil
	for _, node := range t.comments.Items() {
		if node.replies.Confirm(h, c) {
			return true
		}
	}
	return false
}

func (t *Thread) Revert(h Handle) bool {
	if t.comments.Revert(h) {
		return true
	}
	for _, node := range t.comments.Items() {
		if node.replies.Revert(h) {
			return true
		}
	}
	return false
}

func (t *Thread) Find(id int64) (model.Comment, bool) {
	if node := t.node(id); node != nil {
		return node.comment, true
	}
	for _, node := range t.comments.Items() {
		if r, ok := node.replies.Find(byID(id)); ok {
			return r, true
		}
	}
	return model.Comment{}, false
}

// Update applies fn to the confirmed comment or reply with the given id.
func (t *Thread) Update(id int64, fn func(model.Comment) model.Comment) bool {
	if node := t.node(id); node != nil {
		replies := node.comment.Replies
		node.comment = fn(node.comment)
		node.comment.Replies = replies
		return true
	}
	for _, node := range t.comments.Items() {
		if node.replies.Update(byID(id), fn) > 0 {
			return true
		}
	}
	return false
}

// Remove deletes a confirmed comment with its replies, or a single reply.
func (t *Thread) Remove(id int64) bool {
	if t.comments.Remove(func(n *commentNode) bool { return n.comment.ID == id }) > 0 {
		return true
	}
	for _, node := range t.comments.Items() {
		if node.replies.Remove(byID(id)) > 0 {
			return true
		}
	}
	return false
}

// Count is the number of comments and replies.
func (t *Thread) Count() int {
	n := 0
	for _, node := range t.comments.Items() {
		n += 1 + node.replies.Len()
	}
	return n
}

// Snapshot renders the thread with local ids set on pending entries.
func (t *Thread) Snapshot() []model.Comment {
	entries := t.comments.Entries()
	out := make([]model.Comment, 0, len(entries))
	for _, e := range entries {
		c := e.Item.comment
		c.LocalID = e.LocalID
		c.Replies = nil
		for _, re := range e.Item.replies.Entries() {
			r := re.Item
			r.LocalID = re.LocalID
			c.Replies = append(c.Replies, r)
		}
		out = append(out, c)
	}
	return out
}

func (t *Thread) node(id int64) *commentNode {
	node, ok := t.comments.Find(func(n *commentNode) bool { return n.comment.ID == id })
	if !ok {
		return nil
	}
	return node
}

func byID(id int64) func(model.Comment) bool {
	return func(c model.Comment) bool { return c.ID == id }
}
