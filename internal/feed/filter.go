package feed

import (
	"strings"

	"pamana/notes/internal/model"
)

// Filter keeps posts whose content or author id contains query, ignoring
// case. An empty query keeps everything. It never touches the network.
func Filter(posts []model.Post, query string) []model.Post {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]model.Post(nil), posts...)
	}
	out := make([]model.Post, 0, len(posts))
	for _, p := range posts {
		if strings.Contains(strings.ToLower(p.Content), query) ||
			strings.Contains(strings.ToLower(p.Author.SchoolID), query) {
			out = append(out, p)
		}
	}
	return out
}
