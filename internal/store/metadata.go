package store

import (
	"context"

	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
)

// MetadataStore reads the deals_metadata counter table. Counters are
// display-only, so read failures degrade to zero instead of propagating.
type MetadataStore struct {
	store *Store
}

type metadataRow struct {
	Value int `json:"value"`
}

func (ms *MetadataStore) counter(ctx context.Context, key string) int {
	var row metadataRow
	err := ms.store.client.From(TableDealsMetadata).
		Select("value").
		Eq("key", key).
		MaybeSingle().
		Get(ctx, &row)
	if err != nil {
		if !svcerr.Is(err, svcerr.CodeNotFound) {
			ms.store.logger.WithContext(ctx).WithError(err).
				WithField("key", key).Warn("counter fetch failed")
		}
		return 0
	}
	return row.Value
}

// DealsCompleted returns the site-wide completed-deal counter.
func (ms *MetadataStore) DealsCompleted(ctx context.Context) int {
	return ms.counter(ctx, domain.DealsCompletedKey)
}

// UserPurchased returns how many deals the user completed as buyer.
func (ms *MetadataStore) UserPurchased(ctx context.Context, userID string) int {
	return ms.counter(ctx, domain.UserPurchasedKey(userID))
}

// UserSold returns how many deals the user completed as seller.
func (ms *MetadataStore) UserSold(ctx context.Context, userID string) int {
	return ms.counter(ctx, domain.UserSoldKey(userID))
}
