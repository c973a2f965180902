package model

import (
	"sort"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a single line item may hold.
const MaxQuantity = 99

// PriceScale is the number of decimal places prices are rounded to (CLP has none).
const PriceScale int32 = 0

var hundred = decimal.NewFromInt(100)

// SyncMode tells which store is authoritative for the cart.
type SyncMode int

const (
	// ModeLocal: no session, the persistent local store owns the cart.
	ModeLocal SyncMode = iota
	// ModeRemote: authenticated, the backend owns the cart.
	ModeRemote
)

func (m SyncMode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// CartLineItem is one product entry with its quantity and a price snapshot.
// The json names match what the storefront persisted under the "carrito" key.
type CartLineItem struct {
	ProductID       int64           `json:"id"`
	Name            string          `json:"titulo"`
	UnitPrice       decimal.Decimal `json:"precio"`
	ImageRef        string          `json:"imagen"`
	Quantity        int             `json:"cantidad"`
	DiscountPercent int             `json:"descuento,omitempty"`
}

// FinalPrice is the unit price after the discount, rounded to PriceScale.
func (i CartLineItem) FinalPrice() decimal.Decimal {
	if i.DiscountPercent <= 0 {
		return i.UnitPrice
	}
	pct := i.DiscountPercent
	if pct > 100 {
		pct = 100
	}
	off := i.UnitPrice.Mul(decimal.NewFromInt(int64(pct))).Div(hundred)
	return i.UnitPrice.Sub(off).Round(PriceScale)
}

// Subtotal is FinalPrice times Quantity.
func (i CartLineItem) Subtotal() decimal.Decimal {
	return i.FinalPrice().Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartState holds line items keyed by product id. The zero value is an empty cart.
// CartState is not safe for concurrent use; callers copy it through Clone.
type CartState struct {
	items map[int64]CartLineItem
}

// NewCartState builds a cart from a list, folding duplicate product ids
// together and dropping rows with a non-positive quantity.
func NewCartState(items []CartLineItem) CartState {
	s := CartState{items: make(map[int64]CartLineItem, len(items))}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if cur, ok := s.items[it.ProductID]; ok {
			cur.Quantity += it.Quantity
			if cur.Quantity > MaxQuantity {
				cur.Quantity = MaxQuantity
			}
			s.items[it.ProductID] = cur
			continue
		}
		s.items[it.ProductID] = it
	}
	return s
}

// Clone returns a deep copy.
func (s CartState) Clone() CartState {
	out := CartState{items: make(map[int64]CartLineItem, len(s.items))}
	for k, v := range s.items {
		out.items[k] = v
	}
	return out
}

func (s *CartState) ensure() {
	if s.items == nil {
		s.items = make(map[int64]CartLineItem)
	}
}

// Add increments the quantity of an existing row or appends it with quantity 1.
func (s *CartState) Add(item CartLineItem) {
	s.ensure()
	if cur, ok := s.items[item.ProductID]; ok {
		if cur.Quantity < MaxQuantity {
			cur.Quantity++
		}
		s.items[item.ProductID] = cur
		return
	}
	item.Quantity = 1
	s.items[item.ProductID] = item
}

// Remove drops the row for productID, if any.
func (s *CartState) Remove(productID int64) {
	delete(s.items, productID)
}

// SetQuantity overwrites the quantity of an existing row. A quantity of zero
// or less removes the row. Unknown ids are ignored.
func (s *CartState) SetQuantity(productID int64, quantity int) {
	cur, ok := s.items[productID]
	if !ok {
		return
	}
	if quantity <= 0 {
		delete(s.items, productID)
		return
	}
	cur.Quantity = quantity
	s.items[productID] = cur
}

// Clear empties the cart.
func (s *CartState) Clear() {
	s.items = make(map[int64]CartLineItem)
}

// Find returns the row for productID.
func (s CartState) Find(productID int64) (CartLineItem, bool) {
	it, ok := s.items[productID]
	return it, ok
}

// Len is the number of distinct products.
func (s CartState) Len() int { return len(s.items) }

// Count is the running item count: the sum of all quantities.
func (s CartState) Count() int {
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Total sums the line subtotals.
func (s CartState) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Items returns the rows ordered by product id.
func (s CartState) Items() []CartLineItem {
	out := make([]CartLineItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
