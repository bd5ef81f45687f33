package store

import (
	"context"
	"fmt"

	"github.com/unimart/unimart/internal/domain"
	svcerr "github.com/unimart/unimart/internal/errors"
)

// NotificationStore accesses the deal notifications table and the deal
// procedures.
type NotificationStore struct {
	store *Store
}

// notificationRow is the wire shape of a notification with display names
// joined in.
type notificationRow struct {
	domain.Notification
	Buyer   *struct{ Name string `json:"name"` } `json:"buyer"`
	Seller  *struct{ Name string `json:"name"` } `json:"seller"`
	Product *struct{ Name string `json:"name"` } `json:"product"`
}

func (r notificationRow) toDomain() domain.Notification {
	n := r.Notification
	n.BuyerName = "Unknown Buyer"
	n.SellerName = "Unknown Seller"
	n.ProductName = "Unknown Product"
	if r.Buyer != nil && r.Buyer.Name != "" {
		n.BuyerName = r.Buyer.Name
	}
	if r.Seller != nil && r.Seller.Name != "" {
		n.SellerName = r.Seller.Name
	}
	if r.Product != nil && r.Product.Name != "" {
		n.ProductName = r.Product.Name
	}
	return n
}

// FindActive returns the active notification for the (product, buyer,
// seller) triple, or nil when none exists.
func (ns *NotificationStore) FindActive(ctx context.Context, productID, buyerID, sellerID string) (*domain.Notification, error) {
	var found *domain.Notification
	var row domain.Notification
	err := ns.store.client.From(TableNotifications).
		Select("*").
		Eq("product_id", productID).
		Eq("buyer_id", buyerID).
		Eq("seller_id", sellerID).
		MaybeSingle().
		Get(ctx, &row)
	if err != nil {
		ns.store.logger.WithContext(ctx).WithError(err).Error("duplicate-deal preflight failed")
		return nil, err
	}
	if row.ID != "" {
		found = &row
	}
	return found, nil
}

// insertNotification is the column set written when a buyer marks a deal.
type insertNotification struct {
	ProductID    string `json:"product_id"`
	BuyerID      string `json:"buyer_id"`
	SellerID     string `json:"seller_id"`
	Status       string `json:"status"`
	BuyerMarked  bool   `json:"buyer_marked"`
	SellerMarked bool   `json:"seller_marked"`
}

// Create inserts a pending notification with the buyer side marked. The
// backend's uniqueness constraint on the triple is the authoritative
// duplicate guard; the preflight in the service layer is a fast path.
func (ns *NotificationStore) Create(ctx context.Context, productID, buyerID, sellerID string) (*domain.Notification, error) {
	row := insertNotification{
		ProductID:    productID,
		BuyerID:      buyerID,
		SellerID:     sellerID,
		Status:       domain.StatusPendingSellerConfirmation,
		BuyerMarked:  true,
		SellerMarked: false,
	}

	var created domain.Notification
	err := ns.store.client.From(TableNotifications).Single().Insert(ctx, row, &created)
	if err != nil {
		if svcerr.Is(err, svcerr.CodeConflict) {
			err = svcerr.DuplicateDeal()
		}
		ns.store.logger.WithContext(ctx).WithError(err).Error("deal notification creation failed")
		return nil, err
	}
	return &created, nil
}

// Get returns a notification by id.
func (ns *NotificationStore) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	var row domain.Notification
	err := ns.store.client.From(TableNotifications).
		Select("*").
		Eq("id", notificationID).
		Single().
		Get(ctx, &row)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteBySeller removes a pending notification, constrained to the
// seller so only the seller side can cancel.
func (ns *NotificationStore) DeleteBySeller(ctx context.Context, notificationID, sellerID string) error {
	err := ns.store.client.From(TableNotifications).
		Eq("id", notificationID).
		Eq("seller_id", sellerID).
		Delete(ctx)
	if err != nil {
		ns.store.logger.WithContext(ctx).WithError(err).
			WithField("notification_id", notificationID).Error("deal cancellation failed")
		return err
	}
	return nil
}

// CompleteDeal calls the all-or-nothing completion procedure. The backend
// verifies the caller is a party to the deal, sets the caller's marked
// flag, and when both flags are set deletes the notification, product and
// image and increments the counters in one transaction. The client only
// ever observes the two outcomes in DealResult.
func (ns *NotificationStore) CompleteDeal(ctx context.Context, notificationID, userID string) (*domain.DealResult, error) {
	var result domain.DealResult
	err := ns.store.client.RPC(ctx, rpcCompleteDeal, map[string]string{
		"notification_id": notificationID,
		"user_id":         userID,
	}, &result)
	if err != nil {
		ns.store.logger.WithContext(ctx).WithError(err).
			WithField("notification_id", notificationID).Error("deal completion failed")
		return nil, err
	}
	return &result, nil
}

// ListForUser returns all notifications where the user is buyer or
// seller, newest first, with display names joined in.
func (ns *NotificationStore) ListForUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	var rows []notificationRow
	err := ns.store.client.From(TableNotifications).
		Select("*,buyer:profiles!notifications_buyer_id_fkey(name),seller:profiles!notifications_seller_id_fkey(name),product:products!notifications_product_id_fkey(name)").
		Or(fmt.Sprintf("buyer_id.eq.%s,seller_id.eq.%s", userID, userID)).
		Order("created_at", false).
		Get(ctx, &rows)
	if err != nil {
		ns.store.logger.WithContext(ctx).WithError(err).Error("notification listing failed")
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(rows))
	for _, r := range rows {
		notifications = append(notifications, r.toDomain())
	}
	return notifications, nil
}

// ContactInfo returns the contact details both parties need to settle the
// deal offline. The backend releases them only to a party of the deal.
func (ns *NotificationStore) ContactInfo(ctx context.Context, notificationID, userID string) (*domain.ContactInfo, error) {
	var rows []domain.ContactInfo
	err := ns.store.client.RPC(ctx, rpcGetContactInfoForDeal, map[string]string{
		"notification_id":    notificationID,
		"requesting_user_id": userID,
	}, &rows)
	if err != nil {
		ns.store.logger.WithContext(ctx).WithError(err).
			WithField("notification_id", notificationID).Error("contact info fetch failed")
		return nil, err
	}
	if len(rows) == 0 {
		return nil, svcerr.NotFound("Contact information not available")
	}
	return &rows[0], nil
}

// LogSuspiciousActivity records an audit event. Failures are logged and
// swallowed; auditing never blocks the caller's action.
func (ns *NotificationStore) LogSuspiciousActivity(ctx context.Context, actionType string, details map[string]any) {
	err := ns.store.client.RPC(ctx, rpcLogSuspiciousActivity, map[string]any{
		"action_type": actionType,
		"details":     details,
	}, nil)
	if err != nil {
		ns.store.logger.WithContext(ctx).WithError(err).
			WithField("action_type", actionType).Warn("suspicious activity log failed")
	}
}
