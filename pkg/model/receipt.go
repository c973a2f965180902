package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is the confirmation of a completed checkout. Guest orders carry a
// locally generated id; authenticated ones the backend order id.
type Receipt struct {
	OrderID   string
	UserID    int64
	Email     string
	Items     []CartLineItem
	Total     decimal.Decimal
	CreatedAt time.Time
}

// Guest reports whether the order was placed without a session.
func (r Receipt) Guest() bool { return r.UserID <= 0 }
