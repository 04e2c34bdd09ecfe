package overlay

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// render replaces the container's children with the current badge.
func (c *Controller) render() {
	s := c.Snapshot()

	c.mu.Lock()
	container := c.container
	c.mu.Unlock()
	if container == nil {
		return
	}

	class, text := badgeContent(s)
	c.doc.Mutate(func(*html.Node) bool {
		for child := container.FirstChild; child != nil; {
			next := child.NextSibling
			container.RemoveChild(child)
			child = next
		}
		badge := &html.Node{
			Type:     html.ElementNode,
			Data:     "button",
			DataAtom: atom.Button,
			Attr: []html.Attribute{
				{Key: "class", Val: "reviewai-badge " + class},
				{Key: "data-state", Val: string(s.State)},
			},
		}
		badge.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		container.AppendChild(badge)
		return true
	})
}

func badgeContent(s Snapshot) (string, string) {
	switch s.State {
	case StateLoading:
		return "reviewai-loading", "Analyzing reviews..."
	case StateError:
		return "reviewai-error", s.Error
	case StateResult:
		if s.Verdict == nil {
			return "reviewai-idle", "Analyze reviews"
		}
		text := fmt.Sprintf("%s · Trust %.0f", s.Verdict.Verdict, s.Verdict.TrustScore)
		if s.LastUpdatedAt != "" {
			text += " · " + s.LastUpdatedAt
		}
		return "reviewai-" + strings.ToLower(s.Verdict.Verdict), text
	default:
		return "reviewai-idle", "Analyze reviews"
	}
}
