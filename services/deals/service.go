// Package deals implements the two-party deal confirmation flow: a buyer
// marks a deal, the seller confirms or cancels, and completion removes
// the product and updates the counters atomically on the backend.
package deals

import (
	"context"
	"sync"

	"github.com/unimart/unimart/internal/countcache"
	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/store"
)

// Service coordinates deal notifications.
type Service struct {
	store   *store.Store
	counts  *countcache.Cache
	metrics *metrics.Metrics
	logger  *logging.Logger

	counterMu    sync.RWMutex
	counterFresh bool
	counter      int
}

// New creates the deal service.
func New(st *store.Store, counts *countcache.Cache, m *metrics.Metrics, logger *logging.Logger) *Service {
	return &Service{
		store:   st,
		counts:  counts,
		metrics: m,
		logger:  logger,
	}
}

// MarkDeal records a buyer's intent to purchase. Self-deals are rejected,
// and a repeated mark against an existing active notification is refused
// and logged as suspicious activity.
func (s *Service) MarkDeal(ctx context.Context, productID, buyerID string) (*domain.Notification, error) {
	product, err := s.store.Products.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	if product.UserID == buyerID {
		return nil, svcerr.Validation("You cannot mark a deal on your own product", nil)
	}

	existing, err := s.store.Notifications.FindActive(ctx, productID, buyerID, product.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.store.Notifications.LogSuspiciousActivity(ctx, "duplicate_deal_attempt", map[string]any{
			"product_id":      productID,
			"buyer_id":        buyerID,
			"seller_id":       product.UserID,
			"notification_id": existing.ID,
		})
		if existing.BuyerMarked {
			return nil, svcerr.DuplicateDeal()
		}
		return nil, svcerr.Conflict("A deal for this product is already in progress")
	}

	created, err := s.store.Notifications.Create(ctx, productID, buyerID, product.UserID)
	if err != nil {
		// Lost the race against a concurrent mark; audit it the same way.
		if svcerr.Is(err, svcerr.CodeDuplicateDeal) {
			s.store.Notifications.LogSuspiciousActivity(ctx, "duplicate_deal_attempt", map[string]any{
				"product_id": productID,
				"buyer_id":   buyerID,
				"seller_id":  product.UserID,
			})
		}
		return nil, err
	}

	s.metrics.RecordDealMarked()
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"notification_id": created.ID,
		"product_id":      productID,
	}).Info("deal marked")
	return created, nil
}

// CompleteDeal registers the caller's confirmation. When the caller is
// the second party to confirm, the backend finalizes the deal in one
// transaction and DealCompleted is true; the seller's cached product
// count is then stale and gets invalidated.
func (s *Service) CompleteDeal(ctx context.Context, notificationID, userID string) (*domain.DealResult, error) {
	result, err := s.store.Notifications.CompleteDeal(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}

	if !result.Success {
		return nil, svcerr.Conflict("Deal could not be completed")
	}

	if result.DealCompleted {
		s.counts.Invalidate(userID)
		s.metrics.RecordDealCompleted()
		s.logger.WithContext(ctx).
			WithField("notification_id", notificationID).Info("deal completed")
	}
	return result, nil
}

// CancelDeal lets the seller decline a pending deal. The store constrains
// the delete to the seller's own rows, so a non-seller cancel is a no-op
// rejected here after a fetch.
func (s *Service) CancelDeal(ctx context.Context, notificationID, userID string) error {
	target, err := s.store.Notifications.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if target.SellerID != userID {
		return svcerr.Forbidden("Only the seller can cancel a deal")
	}
	if target.Status != domain.StatusPendingSellerConfirmation {
		return svcerr.Conflict("Deal is no longer pending")
	}

	return s.store.Notifications.DeleteBySeller(ctx, notificationID, userID)
}

// ListNotifications returns the user's deals on both sides, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.store.Notifications.ListForUser(ctx, userID)
}

// ContactInfo returns both parties' contact details for a deal the caller
// is part of.
func (s *Service) ContactInfo(ctx context.Context, notificationID, userID string) (*domain.ContactInfo, error) {
	return s.store.Notifications.ContactInfo(ctx, notificationID, userID)
}

// DealsCompleted returns the site-wide completed-deal counter. While the
// realtime feed keeps the counter fresh it is served from memory; until
// the first push (or after a feed outage) it reads through to the backend.
func (s *Service) DealsCompleted(ctx context.Context) int {
	s.counterMu.RLock()
	if s.counterFresh {
		v := s.counter
		s.counterMu.RUnlock()
		return v
	}
	s.counterMu.RUnlock()

	return s.store.Metadata.DealsCompleted(ctx)
}

// RefreshCounter stores a counter value pushed by the realtime feed.
func (s *Service) RefreshCounter(value int) {
	s.counterMu.Lock()
	s.counter = value
	s.counterFresh = true
	s.counterMu.Unlock()
}
