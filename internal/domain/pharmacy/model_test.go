package pharmacy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalPrice(t *testing.T) {
	tests := []struct {
		price, discount, want string
	}{
		{"100", "10", "90.00"},
		{"100", "0", "100.00"},
		{"99.99", "15", "84.99"},
		{"12.50", "100", "0.00"},
		{"33.33", "33.33", "22.22"},
	}
	for _, tt := range tests {
		got := FinalPrice(dec(tt.price), dec(tt.discount))
		assert.Equal(t, tt.want, got.StringFixed(2), "price %s discount %s", tt.price, tt.discount)
	}
}

func TestStockStatus(t *testing.T) {
	m := &Medicine{MinQuantity: 5}
	for qty, want := range map[int]string{0: StockOut, 1: StockLow, 5: StockLow, 6: StockIn} {
		m.Quantity = qty
		assert.Equal(t, want, m.StockStatus(), "quantity %d", qty)
	}
}

func TestMedicine_JSONCarriesDerivedFields(t *testing.T) {
	m := Medicine{Name: "A", Price: dec("100"), Discount: dec("10"), Quantity: 3, MinQuantity: 5}
	raw, err := json.Marshal(m)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "A", out["medicineName"])
	assert.Equal(t, "90", out["finalPrice"])
	assert.Equal(t, StockLow, out["stockStatus"])
}

func TestCart_Recalculate(t *testing.T) {
	c := &Cart{Items: []CartItem{
		{MedicineID: uuid.New(), Quantity: 3, FinalPrice: dec("90")},
		{MedicineID: uuid.New(), Quantity: 2, FinalPrice: dec("12.25")},
	}}
	c.Recalculate()
	assert.Equal(t, "294.50", c.TotalAmount.StringFixed(2))

	c.remove(c.Items[0].MedicineID)
	c.Recalculate()
	assert.Equal(t, "24.50", c.TotalAmount.StringFixed(2))

	c.remove(uuid.New())
	assert.Len(t, c.Items, 1)
}

func TestFeePolicy(t *testing.T) {
	p := FeePolicy{DeliveryFee: decimal.NewFromInt(50), FreeDeliveryThreshold: decimal.NewFromInt(500)}
	assert.Equal(t, "50", p.Fee(OrderTypeDelivery, dec("400")).String())
	assert.Equal(t, "50", p.Fee(OrderTypeDelivery, dec("499.99")).String())
	assert.True(t, p.Fee(OrderTypeDelivery, dec("500")).IsZero())
	assert.True(t, p.Fee(OrderTypePickup, dec("10")).IsZero())
}

func TestNewOrderNumber(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	a, b := NewOrderNumber(now), NewOrderNumber(now)
	assert.Regexp(t, `^ORD-LOYW3V28-[0-9A-Z]{5}$`, a)
	assert.NotEqual(t, a, b)
}

func TestAddress_Missing(t *testing.T) {
	a := &Address{Name: "Asha", Phone: "1", AddressLine1: "x", City: "y", State: "z", Pincode: "1"}
	assert.Empty(t, a.missing())
	a.Pincode = " "
	assert.Equal(t, "deliveryAddress.pincode", a.missing())
}

func TestStatusPolicy_Strict(t *testing.T) {
	delivery := &Order{OrderType: OrderTypeDelivery}
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusPreparing, false},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusDispatched, true},
		{StatusReady, StatusDelivered, true},
		{StatusDispatched, StatusDelivered, true},
		{StatusDispatched, StatusReady, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, "unknown", false},
	}
	for _, tt := range tests {
		delivery.Status = tt.from
		assert.Equal(t, tt.want, PolicyStrict.Allows(delivery, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusPolicy_Free(t *testing.T) {
	o := &Order{OrderType: OrderTypePickup, Status: StatusReady}
	assert.True(t, PolicyFree.Allows(o, StatusPending))
	assert.False(t, PolicyFree.Allows(o, StatusDispatched))
	o.OrderType = OrderTypeDelivery
	assert.True(t, PolicyFree.Allows(o, StatusDispatched))

	for _, terminal := range []string{StatusDelivered, StatusCancelled} {
		o.Status = terminal
		for _, next := range []string{StatusPending, StatusPreparing, StatusCancelled, StatusDelivered} {
			assert.False(t, PolicyFree.Allows(o, next), "%s -> %s", terminal, next)
		}
	}
}

func TestParseStatusPolicy(t *testing.T) {
	p, err := ParseStatusPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	p, err = ParseStatusPolicy("free")
	require.NoError(t, err)
	assert.Equal(t, PolicyFree, p)

	_, err = ParseStatusPolicy("chaos")
	assert.Error(t, err)

	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusReady))
}
