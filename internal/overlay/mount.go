package overlay

import (
	"context"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ContainerID is the fixed id of the overlay root element.
const ContainerID = "reviewai-overlay-root"

// anchorSelectors are tried in order of preference.
var anchorSelectors = []cascadia.Selector{
	cascadia.MustCompile("#rightCol"),
	cascadia.MustCompile("#centerCol"),
	cascadia.MustCompile("#ppd"),
	cascadia.MustCompile("#dp-container"),
}

// FindAnchor returns the preferred insertion point present in doc.
func FindAnchor(doc *Document) (*html.Node, bool) {
	for _, s := range anchorSelectors {
		if n := doc.Query(s); n != nil {
			return n, true
		}
	}
	return nil, false
}

// WaitForAnchor blocks until an anchor exists or timeout elapses.
func WaitForAnchor(ctx context.Context, doc *Document, timeout time.Duration) (*html.Node, error) {
	return Acquire(ctx, timeout, func() (*html.Node, bool) {
		return FindAnchor(doc)
	}, doc.Observe)
}

// Mount inserts the overlay container as the first child of anchor unless a
// container already exists anywhere in the document. It returns the
// container and whether it was created by this call.
func Mount(doc *Document, anchor *html.Node) (*html.Node, bool) {
	var (
		container *html.Node
		created   bool
	)
	byID := cascadia.MustCompile("#" + ContainerID)

	doc.Mutate(func(root *html.Node) bool {
		if existing := byID.MatchFirst(root); existing != nil {
			container = existing
			return false
		}
		container = &html.Node{
			Type:     html.ElementNode,
			Data:     "div",
			DataAtom: atom.Div,
			Attr: []html.Attribute{
				{Key: "id", Val: ContainerID},
				{Key: "class", Val: "reviewai-overlay"},
			},
		}
		anchor.InsertBefore(container, anchor.FirstChild)
		created = true
		return true
	})
	return container, created
}
