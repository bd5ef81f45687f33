package products

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
)

const (
	// PageSize is the number of products fetched per page.
	PageSize = 20
	// browseCacheTTL is how long a fetched page stays fresh.
	browseCacheTTL = 5 * time.Minute
)

type browsePage struct {
	products  []domain.Product
	hasMore   bool
	fetchedAt time.Time
}

// Browser serves category pages with a short-lived cache and ordered
// result application. Each fetch gets a generation number; a response
// carrying a stale generation is discarded so a slow earlier fetch can
// never overwrite a newer one.
type Browser struct {
	service *Service

	mu         sync.Mutex
	pages      map[string]browsePage
	generation map[string]uint64

	now func() time.Time
}

// NewBrowser creates a Browser over the product service.
func NewBrowser(service *Service) *Browser {
	return &Browser{
		service:    service,
		pages:      make(map[string]browsePage),
		generation: make(map[string]uint64),
		now:        time.Now,
	}
}

func pageKey(category string, page int) string {
	return fmt.Sprintf("%s#%d", category, page)
}

// BrowseResult is one page of a category listing.
type BrowseResult struct {
	Products []domain.Product `json:"products"`
	Page     int              `json:"page"`
	HasMore  bool             `json:"has_more"`
	FromCache bool            `json:"-"`
}

// Browse returns one page of the category, served from cache when fresh.
// Browse is safe to call concurrently for the same page; the newest
// completed fetch wins.
func (b *Browser) Browse(ctx context.Context, category string, page int) (*BrowseResult, error) {
	if !domain.IsValidCategory(category) {
		return nil, svcerr.Validation(fmt.Sprintf("unknown category %q", category), nil)
	}
	if page < 0 {
		page = 0
	}
	key := pageKey(category, page)

	b.mu.Lock()
	if cached, ok := b.pages[key]; ok && b.now().Sub(cached.fetchedAt) < browseCacheTTL {
		b.mu.Unlock()
		return &BrowseResult{
			Products:  cached.products,
			Page:      page,
			HasMore:   cached.hasMore,
			FromCache: true,
		}, nil
	}
	b.generation[key]++
	gen := b.generation[key]
	b.mu.Unlock()

	products, err := b.service.store.Products.ByCategory(ctx, category, page, PageSize)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		// Abandoned request; leave the cache alone.
		return nil, ctx.Err()
	}

	hasMore := len(products) == PageSize

	b.mu.Lock()
	if gen == b.generation[key] {
		b.pages[key] = browsePage{
			products:  products,
			hasMore:   hasMore,
			fetchedAt: b.now(),
		}
	}
	b.mu.Unlock()

	return &BrowseResult{
		Products: products,
		Page:     page,
		HasMore:  hasMore,
	}, nil
}

// InvalidateCategory drops the cached pages of a category, e.g. after a
// change event for one of its products.
func (b *Browser) InvalidateCategory(category string) {
	prefix := category + "#"
	b.mu.Lock()
	// Generations are bumped through the generation map, not the page
	// map, so in-flight fetches for uncached pages are invalidated too.
	for key := range b.generation {
		if strings.HasPrefix(key, prefix) {
			delete(b.pages, key)
			b.generation[key]++
		}
	}
	b.mu.Unlock()
}

// InvalidateAll drops the whole browse cache.
func (b *Browser) InvalidateAll() {
	b.mu.Lock()
	b.pages = make(map[string]browsePage)
	for key := range b.generation {
		b.generation[key]++
	}
	b.mu.Unlock()
}
