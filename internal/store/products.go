package store

import (
	"context"

	"github.com/unimart/unimart/internal/domain"
)

// productColumns selects product rows with the owner's live email and
// phone joined in, matching the fk_products_user_id relationship.
const productColumns = "*,profiles!fk_products_user_id(email,phone_number)"

// ProductStore accesses the products table.
type ProductStore struct {
	store *Store
}

// productRow is the wire shape of a product with its embedded profile join.
type productRow struct {
	domain.Product
	Profiles *struct {
		Email       string `json:"email"`
		PhoneNumber string `json:"phone_number"`
	} `json:"profiles"`
}

func (r productRow) toDomain() domain.Product {
	p := r.Product
	if r.Profiles != nil {
		p.SellerEmail = r.Profiles.Email
		p.SellerPhone = r.Profiles.PhoneNumber
	}
	if p.SellerEmail == "" {
		p.SellerEmail = "Email not available"
	}
	return p
}

// insertProduct is the column set written on creation. Seller identity is
// a denormalized snapshot of the profile at creation time.
type insertProduct struct {
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	MarketPrice      float64 `json:"market_price"`
	SellingPrice     float64 `json:"selling_price"`
	Category         string  `json:"category"`
	SellerName       string  `json:"seller_name"`
	SellerRoomNumber string  `json:"seller_room_number"`
	UserID           string  `json:"user_id"`
}

// Create inserts a product row (without image) and returns the created
// product.
func (ps *ProductStore) Create(ctx context.Context, in domain.NewProductInput, owner domain.Profile) (*domain.Product, error) {
	row := insertProduct{
		Name:             in.Name,
		Description:      in.Description,
		MarketPrice:      in.MarketPrice,
		SellingPrice:     in.SellingPrice,
		Category:         in.Category,
		SellerName:       owner.Name,
		SellerRoomNumber: owner.RoomNumber,
		UserID:           owner.ID,
	}

	var created domain.Product
	err := ps.store.client.From(TableProducts).Single().Insert(ctx, row, &created)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).Error("product creation failed")
		return nil, err
	}

	created.SellerEmail = owner.Email
	created.SellerPhone = owner.BestPhone()
	return &created, nil
}

// SetImageURL backfills the image URL after a successful upload.
func (ps *ProductStore) SetImageURL(ctx context.Context, productID, imageURL string) (*domain.Product, error) {
	var updated domain.Product
	err := ps.store.client.From(TableProducts).
		Eq("id", productID).
		Single().
		Update(ctx, map[string]string{"image_url": imageURL}, &updated)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("product_id", productID).Error("image url backfill failed")
		return nil, err
	}
	return &updated, nil
}

// ByCategory returns one page of a category's products, newest first,
// with seller contact joined from the live profile.
func (ps *ProductStore) ByCategory(ctx context.Context, category string, page, limit int) ([]domain.Product, error) {
	from := page * limit
	to := from + limit - 1

	var rows []productRow
	err := ps.store.client.From(TableProducts).
		Select(productColumns).
		Eq("category", category).
		Order("created_at", false).
		Range(from, to).
		Get(ctx, &rows)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("category", category).Error("category listing failed")
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.toDomain())
	}
	return products, nil
}

// ByUser returns one page of a user's own listings, newest first.
func (ps *ProductStore) ByUser(ctx context.Context, userID string, page, limit int) ([]domain.Product, error) {
	from := page * limit
	to := from + limit - 1

	var rows []productRow
	err := ps.store.client.From(TableProducts).
		Select(productColumns).
		Eq("user_id", userID).
		Order("created_at", false).
		Range(from, to).
		Get(ctx, &rows)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("user_id", userID).Error("user listing failed")
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.toDomain())
	}
	return products, nil
}

// Get returns a single product by id.
func (ps *ProductStore) Get(ctx context.Context, productID string) (*domain.Product, error) {
	var row productRow
	err := ps.store.client.From(TableProducts).
		Select(productColumns).
		Eq("id", productID).
		Single().
		Get(ctx, &row)
	if err != nil {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

// DeleteWithCleanup removes a product and its stored image through the
// backend procedure so the two cannot diverge.
func (ps *ProductStore) DeleteWithCleanup(ctx context.Context, productID string) error {
	var deleted bool
	err := ps.store.client.RPC(ctx, rpcDeleteProductWithCleanup,
		map[string]string{"product_uuid": productID}, &deleted)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("product_id", productID).Error("product deletion failed")
		return err
	}
	if !deleted {
		ps.store.logger.WithContext(ctx).
			WithField("product_id", productID).Warn("product deletion reported no-op")
	}
	return nil
}

// CountForUser returns the number of active listings the user has. The
// count is authoritative on the backend; callers cache it behind the
// count guard.
func (ps *ProductStore) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := ps.store.client.RPC(ctx, rpcGetUserProductCount,
		map[string]string{"user_uuid": userID}, &count)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("user_id", userID).Error("product count fetch failed")
		return 0, err
	}
	return count, nil
}
