package products

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/unimart/unimart/internal/domain"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/supabase/client"
)

// LiveView maintains an in-memory product list for one category, fed by
// the change stream. Inserts are deduplicated by id and filtered to the
// category, updates replace in place, deletes remove. Snapshot returns a
// copy so readers never observe a partially applied event.
type LiveView struct {
	category string
	realtime *client.RealtimeClient
	metrics  *metrics.Metrics
	logger   *logging.Logger

	mu       sync.RWMutex
	byID     map[string]int
	products []domain.Product

	unsubscribe func()
}

// NewLiveView creates a live view for category, seeded with the given
// products.
func NewLiveView(category string, seed []domain.Product, rt *client.RealtimeClient, m *metrics.Metrics, logger *logging.Logger) *LiveView {
	v := &LiveView{
		category: category,
		realtime: rt,
		metrics:  m,
		logger:   logger,
		byID:     make(map[string]int),
	}
	for _, p := range seed {
		v.byID[p.ID] = len(v.products)
		v.products = append(v.products, p)
	}
	return v
}

// Start subscribes the view to the products change stream, filtered to
// its category on the server side.
func (v *LiveView) Start(ctx context.Context) error {
	unsubscribe, err := v.realtime.Subscribe(ctx, client.ChangeFilter{
		Event:  "*",
		Schema: "public",
		Table:  "products",
		Filter: "category=eq." + v.category,
	}, v.apply)
	if err != nil {
		return err
	}
	v.unsubscribe = unsubscribe
	return nil
}

// Stop detaches the view from the change stream. Safe to call twice.
func (v *LiveView) Stop() {
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}

func (v *LiveView) apply(event client.ChangeEvent) {
	v.metrics.RecordRealtimeEvent("products", event.Type)

	switch event.Type {
	case "INSERT":
		v.applyInsert(event.New)
	case "UPDATE":
		v.applyUpdate(event.New)
	case "DELETE":
		v.applyDelete(event.Old)
	}
}

func (v *LiveView) decode(record json.RawMessage) (domain.Product, bool) {
	var p domain.Product
	if len(record) == 0 {
		return p, false
	}
	if err := json.Unmarshal(record, &p); err != nil {
		v.logger.WithError(err).Warn("undecodable change record dropped")
		return p, false
	}
	return p, true
}

func (v *LiveView) applyInsert(record json.RawMessage) {
	p, ok := v.decode(record)
	if !ok || p.ID == "" {
		return
	}
	// The server-side filter normally guarantees the category, but the
	// stream may replay broader events after a reconnect.
	if p.Category != v.category {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.byID[p.ID]; exists {
		return
	}
	// Newest first, matching the fetch order.
	v.products = append([]domain.Product{p}, v.products...)
	v.reindex()
}

func (v *LiveView) applyUpdate(record json.RawMessage) {
	p, ok := v.decode(record)
	if !ok || p.ID == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	idx, exists := v.byID[p.ID]
	if !exists {
		return
	}
	if p.Category != v.category {
		// Recategorized away; treat as a removal.
		v.products = append(v.products[:idx], v.products[idx+1:]...)
		v.reindex()
		return
	}
	v.products[idx] = p
}

func (v *LiveView) applyDelete(record json.RawMessage) {
	p, ok := v.decode(record)
	if !ok || p.ID == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	idx, exists := v.byID[p.ID]
	if !exists {
		return
	}
	v.products = append(v.products[:idx], v.products[idx+1:]...)
	v.reindex()
}

// reindex rebuilds the id index; caller holds v.mu.
func (v *LiveView) reindex() {
	v.byID = make(map[string]int, len(v.products))
	for i, p := range v.products {
		v.byID[p.ID] = i
	}
}

// Snapshot returns a copy of the current list.
func (v *LiveView) Snapshot() []domain.Product {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Product, len(v.products))
	copy(out, v.products)
	return out
}

// Len returns the current list length.
func (v *LiveView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.products)
}
