// ABOUTME: Renders post descriptions from Markdown to HTML with goldmark
// ABOUTME: Query responses carry the rendered HTML beside the raw description

package operations

import (
	"bytes"

	"github.com/2389/gigs-gateway/internal/store"
)

// postView adds the rendered description to a post.
type postView struct {
	*store.Post
	DescriptionHTML string `json:"descriptionHtml"`
}

func (s *Service) render(posts []*store.Post) []postView {
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		var buf bytes.Buffer
		if err := s.md.Convert([]byte(p.Description), &buf); err != nil {
			s.logger.Warn("rendering description", "postid", p.ID, "error", err)
			buf.Reset()
		}
		views = append(views, postView{Post: p, DescriptionHTML: buf.String()})
	}
	return views
}
