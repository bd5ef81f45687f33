// Package products implements product listing, browsing and removal.
package products

import (
	"context"
	"fmt"
	"sync"

	"github.com/unimart/unimart/internal/countcache"
	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
	"github.com/unimart/unimart/internal/logging"
	"github.com/unimart/unimart/internal/metrics"
	"github.com/unimart/unimart/internal/sanitize"
	"github.com/unimart/unimart/internal/store"
	"github.com/unimart/unimart/supabase/client"
)

// MaxImageBytes caps uploaded product images. Clients compress toward
// 400KB; the ceiling only guards against runaway uploads.
const MaxImageBytes = 35 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Service coordinates product operations behind the count guard.
type Service struct {
	store   *store.Store
	counts  *countcache.Cache
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// New creates the product service.
func New(st *store.Store, counts *countcache.Cache, m *metrics.Metrics, logger *logging.Logger) *Service {
	return &Service{
		store:   st,
		counts:  counts,
		metrics: m,
		logger:  logger,
	}
}

// Counts exposes the count guard for subscribers.
func (s *Service) Counts() *countcache.Cache { return s.counts }

// ImageUpload is an optional image attached at creation time.
type ImageUpload struct {
	Data        []byte
	ContentType string
}

// Create validates the input, enforces the listing cap, inserts the
// product with a snapshot of the seller's profile, and uploads the image
// if one was provided. An image failure does not roll back the product;
// the listing simply has no picture.
func (s *Service) Create(ctx context.Context, userID string, in domain.NewProductInput, image *ImageUpload) (*domain.Product, error) {
	in.Name = sanitize.Text(in.Name)
	in.Description = sanitize.Text(in.Description)
	if err := in.Validate(); err != nil {
		return nil, svcerr.Validation(err.Error(), nil)
	}

	if image != nil {
		if len(image.Data) > MaxImageBytes {
			return nil, svcerr.Validation("Image is too large", nil)
		}
		if _, ok := allowedImageTypes[image.ContentType]; !ok {
			return nil, svcerr.Validation("Unsupported image type", nil)
		}
	}

	reached, err := s.counts.LimitReached(ctx, userID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("count fetch failed, using last known value")
	}
	if reached {
		return nil, svcerr.LimitExceeded(domain.MaxActiveProducts)
	}

	owner, err := s.store.Profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Products.Create(ctx, in, *owner)
	if err != nil {
		return nil, err
	}

	s.counts.Invalidate(userID)
	s.metrics.RecordProductCreated()

	if image != nil {
		if withImage, imgErr := s.attachImage(ctx, created, image); imgErr == nil {
			created = withImage
		} else {
			s.logger.WithContext(ctx).WithError(imgErr).
				WithField("product_id", created.ID).Warn("image upload failed, product kept without image")
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"product_id": created.ID,
		"category":   created.Category,
	}).Info("product created")
	return created, nil
}

// attachImage uploads the image under {user}/{product}.{ext} and
// backfills the product's image URL.
func (s *Service) attachImage(ctx context.Context, product *domain.Product, image *ImageUpload) (*domain.Product, error) {
	ext := allowedImageTypes[image.ContentType]
	key := fmt.Sprintf("%s/%s.%s", product.UserID, product.ID, ext)

	bucket := s.store.Images()
	err := bucket.Upload(ctx, key, image.Data, client.UploadOptions{
		ContentType:  image.ContentType,
		Upsert:       true,
		CacheControl: "3600",
	})
	if err != nil {
		return nil, err
	}

	return s.store.Products.SetImageURL(ctx, product.ID, bucket.PublicURL(key))
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, productID string) (*domain.Product, error) {
	return s.store.Products.Get(ctx, productID)
}

// MyListings returns one page of the caller's products.
func (s *Service) MyListings(ctx context.Context, userID string, page int) ([]domain.Product, error) {
	if page < 0 {
		page = 0
	}
	return s.store.Products.ByUser(ctx, userID, page, PageSize)
}

// Delete removes the caller's product along with its stored image, then
// invalidates the cached count so the freed slot is visible immediately.
func (s *Service) Delete(ctx context.Context, userID, productID string) error {
	product, err := s.store.Products.Get(ctx, productID)
	if err != nil {
		return err
	}
	if product.UserID != userID {
		return svcerr.Forbidden("You can only delete your own products")
	}

	if err := s.store.Products.DeleteWithCleanup(ctx, productID); err != nil {
		return err
	}

	s.counts.Invalidate(userID)
	s.metrics.RecordProductDeleted()
	return nil
}

// Count returns the caller's active listing count through the guard.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	count, err := s.counts.Get(ctx, userID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("count fetch failed, using last known value")
		return count, nil
	}
	return count, nil
}

// RefreshCount is the user-initiated count reload.
func (s *Service) RefreshCount(ctx context.Context, userID string) (int, error) {
	count, err := s.counts.Refresh(ctx, userID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("count refresh failed, using last known value")
		return count, nil
	}
	return count, nil
}

// Dashboard bundles the caller's profile, listings and count in one
// response; the three reads run concurrently.
type Dashboard struct {
	Profile  *domain.Profile  `json:"profile"`
	Products []domain.Product `json:"products"`
	Count    int              `json:"count"`
	Limit    int              `json:"limit"`
}

// GetDashboard loads the seller dashboard.
func (s *Service) GetDashboard(ctx context.Context, userID string) (*Dashboard, error) {
	var (
		wg          sync.WaitGroup
		profile     *domain.Profile
		listings    []domain.Product
		count       int
		profileErr  error
		listingsErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		profile, profileErr = s.store.Profiles.Get(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		listings, listingsErr = s.store.Products.ByUser(ctx, userID, 0, PageSize)
	}()
	go func() {
		defer wg.Done()
		count, _ = s.counts.Get(ctx, userID)
	}()
	wg.Wait()

	if profileErr != nil {
		return nil, profileErr
	}
	if listingsErr != nil {
		return nil, listingsErr
	}

	return &Dashboard{
		Profile:  profile,
		Products: listings,
		Count:    count,
		Limit:    domain.MaxActiveProducts,
	}, nil
}

// UserStats are the per-user trade counters shown on the profile page.
type UserStats struct {
	Purchased int `json:"purchased"`
	Sold      int `json:"sold"`
}

// GetUserStats returns the user's completed-deal counters.
func (s *Service) GetUserStats(ctx context.Context, userID string) *UserStats {
	return &UserStats{
		Purchased: s.store.Metadata.UserPurchased(ctx, userID),
		Sold:      s.store.Metadata.UserSold(ctx, userID),
	}
}
