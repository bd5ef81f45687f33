package domain

import "time"

// Deal notification statuses. A completed deal is represented by row
// absence; "cancelled" only survives as long as a client has it cached.
const (
	StatusPendingSellerConfirmation = "pending_seller_confirmation"
	StatusCancelled                 = "cancelled"
)

// Notification is the record representing a buyer's interest in a product
// and the seller's response. At most one active row may exist per
// (product, buyer, seller) triple.
type Notification struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	Status       string    `json:"status"`
	BuyerMarked  bool      `json:"buyer_marked"`
	SellerMarked bool      `json:"seller_marked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Joined display fields, populated on list reads only.
	BuyerName   string `json:"buyer_name,omitempty"`
	SellerName  string `json:"seller_name,omitempty"`
	ProductName string `json:"product_name,omitempty"`
}

// DealResult is the outcome of the remote complete_deal procedure. The
// procedure is all-or-nothing: DealCompleted false means the deal is still
// pending the other party, true means the notification, product and image
// are gone and the counters have been incremented.
type DealResult struct {
	Success       bool `json:"success"`
	DealCompleted bool `json:"deal_completed"`
}

// ContactInfo is exchanged between the two parties of a pending deal so
// they can coordinate the offline handoff and payment.
type ContactInfo struct {
	SellerEmail string `json:"seller_email"`
	SellerPhone string `json:"seller_phone"`
	SellerUPI   string `json:"seller_upi"`
	BuyerEmail  string `json:"buyer_email"`
	BuyerPhone  string `json:"buyer_phone"`
}
