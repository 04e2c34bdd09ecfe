package overlay

import (
	"bytes"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/scraper"
)

// Document is a product page that can change after load. All reads and
// writes go through it so observers see every mutation.
type Document struct {
	mu        sync.RWMutex
	page      *scraper.Page
	observers map[int]chan struct{}
	nextID    int
}

func NewDocument(page *scraper.Page) *Document {
	return &Document{page: page, observers: make(map[int]chan struct{})}
}

func (d *Document) URL() string { return d.page.URL }

// Observe returns a channel that receives one notification per mutation
// batch. Notifications that arrive while one is pending are coalesced.
func (d *Document) Observe() (<-chan struct{}, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan struct{}, 1)
	d.observers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.observers, id)
		})
	}
}

// Observers reports how many observers are attached.
func (d *Document) Observers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

// Mutate runs fn with exclusive access to the tree. Observers are notified
// when fn reports a change.
func (d *Document) Mutate(fn func(root *html.Node) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !fn(d.page.Root) {
		return
	}
	for _, ch := range d.observers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Query returns the first element matching sel.
func (d *Document) Query(sel cascadia.Selector) *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sel.MatchFirst(d.page.Root)
}

// CountByID counts elements carrying id.
func (d *Document) CountByID(id string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(cascadia.MustCompile("#" + id).MatchAll(d.page.Root))
}

// Extract reads the visible product data.
func (d *Document) Extract() models.ProductInput {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return scraper.Extract(d.page)
}

// TextOf returns the collapsed text of the element with id.
func (d *Document) TextOf(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := cascadia.MustCompile("#" + id).MatchFirst(d.page.Root)
	if n == nil {
		return ""
	}
	return scraper.Text(n)
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.page.Root); err != nil {
		return "", err
	}
	return buf.String(), nil
}
