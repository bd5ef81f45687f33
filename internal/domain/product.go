// Package domain defines the entities persisted in the marketplace backend.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ValidCategories are the categories accepted by the products table
// constraint. Listings in any other category are rejected before a
// network call is made.
var ValidCategories = []string{
	"Electronics",
	"Beauty & Personal Care",
	"Munchies",
	"Stationary",
	"Fruits & Veggies",
	"Other Products",
}

// MaxActiveProducts is the cap on concurrently active listings per user.
const MaxActiveProducts = 5

// Product is a marketplace listing. Seller fields are a denormalized
// snapshot of the owning profile taken at creation time; seller email and
// phone are joined from the live profile on reads.
type Product struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	MarketPrice      float64   `json:"market_price"`
	SellingPrice     float64   `json:"selling_price"`
	Category         string    `json:"category"`
	ImageURL         string    `json:"image_url,omitempty"`
	SellerName       string    `json:"seller_name"`
	SellerRoomNumber string    `json:"seller_room_number"`
	SellerEmail      string    `json:"seller_email,omitempty"`
	SellerPhone      string    `json:"seller_phone_number,omitempty"`
	UserID           string    `json:"user_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewProductInput carries the fields a seller provides when listing a product.
type NewProductInput struct {
	Name         string
	Description  string
	MarketPrice  float64
	SellingPrice float64
	Category     string
}

// Validate checks the listing invariants locally so that invalid input
// never reaches the backend.
func (in NewProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("product name is required")
	}
	if in.MarketPrice <= 0 {
		return fmt.Errorf("market price must be positive")
	}
	if in.SellingPrice <= 0 {
		return fmt.Errorf("selling price must be positive")
	}
	if in.SellingPrice > in.MarketPrice {
		return fmt.Errorf("selling price cannot exceed market price")
	}
	if !IsValidCategory(in.Category) {
		return fmt.Errorf("invalid category %q, must be one of: %s", in.Category, strings.Join(ValidCategories, ", "))
	}
	return nil
}

// IsValidCategory reports whether category is one of the fixed set.
func IsValidCategory(category string) bool {
	for _, c := range ValidCategories {
		if c == category {
			return true
		}
	}
	return false
}

// LimitReached reports whether count listings already hit the per-user cap.
func LimitReached(count int) bool {
	return count >= MaxActiveProducts
}
