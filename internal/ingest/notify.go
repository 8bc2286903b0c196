package ingest

import (
	"sync"

	"github.com/ziadkadry99/compound-rag/internal/catalog"
)

// notifier fans document status changes out to watchers. Slow watchers
// miss intermediate states; they re-read the store on their own ticker.
type notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan catalog.Document]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[chan catalog.Document]struct{})}
}

func (n *notifier) subscribe(id string) (<-chan catalog.Document, func()) {
	ch := make(chan catalog.Document, 8)
	n.mu.Lock()
	if n.subs[id] == nil {
		n.subs[id] = make(map[chan catalog.Document]struct{})
	}
	n.subs[id][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[id], ch)
			if len(n.subs[id]) == 0 {
				delete(n.subs, id)
			}
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(doc catalog.Document) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[doc.ID] {
		select {
		case ch <- doc:
		default:
		}
	}
}
