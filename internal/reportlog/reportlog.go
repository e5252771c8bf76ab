// Package reportlog persists generated reports best-effort. Writes go
// through a write-behind worker and never fail a response; reads are
// served from a small expirable cache in front of the store.
package reportlog

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"geocontext/internal/geo"
	"geocontext/internal/metrics"
)

// Entry categories mirror which path produced the report.
const (
	CategoryGenerated = "generated"
	CategoryFallback  = "fallback"
)

// Entry is one persisted report.
type Entry struct {
	ID        string          `json:"id"`
	PlaceName string          `json:"place_name"`
	PlaceKey  string          `json:"place_key"`
	Center    geo.Coordinate  `json:"center"`
	Category  string          `json:"category"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEntry stamps an entry with a fresh id, the normalized place key,
// and the current time.
func NewEntry(placeName string, center geo.Coordinate, category string, payload json.RawMessage) Entry {
	return Entry{
		ID:        uuid.NewString(),
		PlaceName: placeName,
		PlaceKey:  PlaceKey(placeName),
		Center:    center,
		Category:  category,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// PlaceKey normalizes a place name into the lookup key.
func PlaceKey(placeName string) string {
	return strings.Join(strings.Fields(strings.ToLower(placeName)), "-")
}

// Store is a report log backend. Implementations are best-effort;
// callers log and swallow errors.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Recent(ctx context.Context, placeKey string, limit int) ([]Entry, error)
}

// Worker is the write-behind queue in front of a Store. Record never
// blocks: when the queue is full the entry is dropped and counted.
type Worker struct {
	store Store
	queue chan Entry

	recent *expirable.LRU[string, Entry]

	stopOnce sync.Once
	done     chan struct{}
}

func NewWorker(store Store, queueSize int) *Worker {
	if queueSize <= 0 {
		queueSize = 128
	}
	w := &Worker{
		store:  store,
		queue:  make(chan Entry, queueSize),
		recent: expirable.NewLRU[string, Entry](256, nil, 30*time.Minute),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	for e := range w.queue {
		if w.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.store.Save(ctx, e); err != nil {
			log.Printf("reportlog: save failed for %q: %v", e.PlaceKey, err)
		}
		cancel()
	}
	close(w.done)
}

// Record enqueues an entry. Returns false when the queue was full and
// the entry was dropped.
func (w *Worker) Record(e Entry) bool {
	if w == nil {
		return false
	}
	w.recent.Add(e.PlaceKey, e)
	select {
	case w.queue <- e:
		return true
	default:
		metrics.ReportLogDroppedTotal.Inc()
		log.Printf("reportlog: queue full, dropped entry for %q", e.PlaceKey)
		return false
	}
}

// Lookup returns the most recent report for a place, preferring the
// in-process cache over the store.
func (w *Worker) Lookup(ctx context.Context, placeName string) (Entry, bool) {
	if w == nil {
		return Entry{}, false
	}
	key := PlaceKey(placeName)
	if e, ok := w.recent.Get(key); ok {
		return e, true
	}
	if w.store == nil {
		return Entry{}, false
	}
	entries, err := w.store.Recent(ctx, key, 1)
	if err != nil || len(entries) == 0 {
		return Entry{}, false
	}
	w.recent.Add(key, entries[0])
	return entries[0], true
}

// Close drains the queue and stops the worker.
func (w *Worker) Close() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.queue)
		<-w.done
	})
}
