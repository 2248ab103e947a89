package domain

import "github.com/shopspring/decimal"

// Listing carries the fields pricing needs from a listing. Listing CRUD lives
// elsewhere.
type Listing struct {
	ID            int64           `json:"id"`
	OwnerID       int64           `json:"owner_id"`
	Title         string          `json:"title"`
	DailyPrice    decimal.Decimal `json:"daily_price"`
	DamageDeposit decimal.Decimal `json:"damage_deposit"`
	IsActive      bool            `json:"is_active"`
	IsSuspended   bool            `json:"is_suspended"`
}
