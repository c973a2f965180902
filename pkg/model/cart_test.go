package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartLineItem_FinalPriceAndSubtotal(t *testing.T) {
	item := CartLineItem{ProductID: 1, UnitPrice: decimal.NewFromInt(10000), Quantity: 3, DiscountPercent: 20}

	assert.True(t, decimal.NewFromInt(8000).Equal(item.FinalPrice()), "got %s", item.FinalPrice())
	assert.True(t, decimal.NewFromInt(24000).Equal(item.Subtotal()), "got %s", item.Subtotal())
}

func TestCartLineItem_FinalPriceRounds(t *testing.T) {
	// 29990 - 10% = 26991; 24990 - 15% = 21241.5 -> 21242
	a := CartLineItem{UnitPrice: decimal.NewFromInt(29990), DiscountPercent: 10}
	b := CartLineItem{UnitPrice: decimal.NewFromInt(24990), DiscountPercent: 15}

	assert.Equal(t, "26991", a.FinalPrice().String())
	assert.Equal(t, "21242", b.FinalPrice().String())
}

func TestCartLineItem_NoDiscount(t *testing.T) {
	item := CartLineItem{UnitPrice: decimal.NewFromInt(549990), Quantity: 2}
	assert.Equal(t, "549990", item.FinalPrice().String())
	assert.Equal(t, "1099980", item.Subtotal().String())
}

func TestCartState_AddCountsPerProduct(t *testing.T) {
	var s CartState
	adds := []int64{1, 2, 1, 3, 1, 2}
	for _, id := range adds {
		s.Add(CartLineItem{ProductID: id, Name: "p", UnitPrice: decimal.NewFromInt(10)})
	}

	require.Equal(t, 3, s.Len())
	one, _ := s.Find(1)
	two, _ := s.Find(2)
	three, _ := s.Find(3)
	assert.Equal(t, 3, one.Quantity)
	assert.Equal(t, 2, two.Quantity)
	assert.Equal(t, 1, three.Quantity)
	assert.Equal(t, len(adds), s.Count())
}

func TestCartState_SetQuantityZeroRemoves(t *testing.T) {
	s := NewCartState([]CartLineItem{{ProductID: 7, Quantity: 4}})

	s.SetQuantity(7, 0)

	_, ok := s.Find(7)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count())
}

func TestCartState_SetQuantityUnknownIgnored(t *testing.T) {
	s := NewCartState([]CartLineItem{{ProductID: 7, Quantity: 4}})
	s.SetQuantity(8, 2)
	assert.Equal(t, 1, s.Len())
}

func TestNewCartState_FoldsDuplicatesAndDropsEmpty(t *testing.T) {
	s := NewCartState([]CartLineItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 0},
	})

	require.Equal(t, 1, s.Len())
	it, _ := s.Find(1)
	assert.Equal(t, 5, it.Quantity)
}

func TestCartState_CloneIsIndependent(t *testing.T) {
	s := NewCartState([]CartLineItem{{ProductID: 1, Quantity: 1}})
	c := s.Clone()
	c.Add(CartLineItem{ProductID: 1})

	orig, _ := s.Find(1)
	assert.Equal(t, 1, orig.Quantity)
}

func TestCartLineItem_StorageJSON(t *testing.T) {
	raw := `[{"id":1,"titulo":"Catan","precio":29990,"imagen":"/img/catan.png","cantidad":2,"descuento":10}]`
	var items []CartLineItem
	require.NoError(t, json.Unmarshal([]byte(raw), &items))

	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, "Catan", items[0].Name)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "26991", items[0].FinalPrice().String())
}

func TestProduct_LineItemKeepsDiscountOnlyOnOffer(t *testing.T) {
	p := Product{ID: 3, Name: "PS5", Price: decimal.NewFromInt(100), DiscountPercent: 30}
	assert.Equal(t, 0, p.LineItem().DiscountPercent)

	p.Offer = true
	assert.Equal(t, 30, p.LineItem().DiscountPercent)
	assert.Equal(t, 1, p.LineItem().Quantity)
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, OrderStatusShipped.Valid())
	assert.False(t, OrderStatus("PERDIDO").Valid())
}

func TestOrderRequestItems_UsesFinalPrice(t *testing.T) {
	lines := OrderRequestItems([]CartLineItem{{ProductID: 1, UnitPrice: decimal.NewFromInt(10000), DiscountPercent: 20, Quantity: 3}})
	require.Len(t, lines, 1)
	assert.Equal(t, "8000", lines[0].UnitPrice.String())
	assert.Equal(t, 3, lines[0].Quantity)
}
