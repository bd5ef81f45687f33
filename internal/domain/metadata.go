package domain

// Keys into the deals_metadata counter table. The counters are denormalized
// aggregates maintained by the complete_deal procedure; clients read them
// for display only.
const DealsCompletedKey = "deals_completed"

// UserPurchasedKey returns the counter key for deals a user bought.
func UserPurchasedKey(userID string) string {
	return "user_purchased_" + userID
}

// UserSoldKey returns the counter key for deals a user sold.
func UserSoldKey(userID string) string {
	return "user_sold_" + userID
}
