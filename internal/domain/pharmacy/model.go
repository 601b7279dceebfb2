package pharmacy

import (
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// =========== Pharmacy ===========

type OpeningHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type Pharmacy struct {
	ID                uuid.UUID    `json:"id"`
	OwnerID           uuid.UUID    `json:"ownerId"`
	Name              string       `json:"name"`
	Location          string       `json:"location"`
	Address           string       `json:"address"`
	Contact           string       `json:"contact"`
	Email             string       `json:"email,omitempty"`
	Description       string       `json:"description,omitempty"`
	Image             string       `json:"image,omitempty"`
	IsActive          bool         `json:"isActive"`
	OpeningHours      OpeningHours `json:"openingHours"`
	DeliveryAvailable bool         `json:"deliveryAvailable"`
	DeliveryRadiusKM  int          `json:"deliveryRadius"`
	Rating            Rating       `json:"ratings"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// PharmacyInput creates a pharmacy or, with nil fields skipped, updates one.
type PharmacyInput struct {
	Name              *string       `json:"name"`
	Location          *string       `json:"location"`
	Address           *string       `json:"address"`
	Contact           *string       `json:"contact"`
	Email             *string       `json:"email"`
	Description       *string       `json:"description"`
	Image             *string       `json:"image"`
	IsActive          *bool         `json:"isActive"`
	OpeningHours      *OpeningHours `json:"openingHours"`
	DeliveryAvailable *bool         `json:"deliveryAvailable"`
	DeliveryRadiusKM  *int          `json:"deliveryRadius"`
}

func (in PharmacyInput) apply(p *Pharmacy) {
	setString(&p.Name, in.Name)
	setString(&p.Location, in.Location)
	setString(&p.Address, in.Address)
	setString(&p.Contact, in.Contact)
	setString(&p.Email, in.Email)
	setString(&p.Description, in.Description)
	setString(&p.Image, in.Image)
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.OpeningHours != nil {
		p.OpeningHours = *in.OpeningHours
	}
	if in.DeliveryAvailable != nil {
		p.DeliveryAvailable = *in.DeliveryAvailable
	}
	if in.DeliveryRadiusKM != nil {
		p.DeliveryRadiusKM = *in.DeliveryRadiusKM
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

type PharmacyFilter struct {
	Search   string
	Location string
}

// =========== Medicine ===========

const (
	StockIn  = "in-stock"
	StockLow = "low-stock"
	StockOut = "out-of-stock"
)

var validForms = map[string]bool{
	"Tablet": true, "Capsule": true, "Syrup": true, "Injection": true,
	"Cream": true, "Drops": true, "Powder": true, "Other": true,
}

const (
	defaultCategory    = "General"
	defaultForm        = "Tablet"
	defaultMinQuantity = 5
)

// Medicine is one stock line of a pharmacy, unique per (pharmacy, name).
type Medicine struct {
	ID                   uuid.UUID       `json:"id"`
	PharmacyID           uuid.UUID       `json:"pharmacyId"`
	Name                 string          `json:"medicineName"`
	GenericName          string          `json:"genericName,omitempty"`
	Brand                string          `json:"brand,omitempty"`
	Category             string          `json:"category"`
	Description          string          `json:"description,omitempty"`
	Dosage               string          `json:"dosage,omitempty"`
	Form                 string          `json:"form"`
	Price                decimal.Decimal `json:"price"`
	MRP                  decimal.Decimal `json:"mrp"`
	Discount             decimal.Decimal `json:"discount"`
	Quantity             int             `json:"quantity"`
	MinQuantity          int             `json:"minQuantity"`
	ExpiryDate           *time.Time      `json:"expiryDate,omitempty"`
	BatchNumber          string          `json:"batchNumber,omitempty"`
	Manufacturer         string          `json:"manufacturer,omitempty"`
	PrescriptionRequired bool            `json:"prescriptionRequired"`
	IsActive             bool            `json:"isActive"`
	Image                string          `json:"image,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// FinalPrice is price less the percentage discount, rounded to 2 places.
func (m *Medicine) FinalPrice() decimal.Decimal {
	return FinalPrice(m.Price, m.Discount)
}

func FinalPrice(price, discount decimal.Decimal) decimal.Decimal {
	return price.Sub(price.Mul(discount).Div(hundred)).Round(2)
}

func (m *Medicine) StockStatus() string {
	switch {
	case m.Quantity <= 0:
		return StockOut
	case m.Quantity <= m.MinQuantity:
		return StockLow
	default:
		return StockIn
	}
}

// MarshalJSON adds the derived finalPrice and stockStatus.
func (m Medicine) MarshalJSON() ([]byte, error) {
	type plain Medicine
	return json.Marshal(struct {
		plain
		FinalPrice  decimal.Decimal `json:"finalPrice"`
		StockStatus string          `json:"stockStatus"`
	}{plain(m), m.FinalPrice(), m.StockStatus()})
}

// MedicineInput creates a medicine or, with nil fields skipped, updates one.
type MedicineInput struct {
	Name                 *string          `json:"medicineName"`
	GenericName          *string          `json:"genericName"`
	Brand                *string          `json:"brand"`
	Category             *string          `json:"category"`
	Description          *string          `json:"description"`
	Dosage               *string          `json:"dosage"`
	Form                 *string          `json:"form"`
	Price                *decimal.Decimal `json:"price"`
	MRP                  *decimal.Decimal `json:"mrp"`
	Discount             *decimal.Decimal `json:"discount"`
	Quantity             *int             `json:"quantity"`
	MinQuantity          *int             `json:"minQuantity"`
	ExpiryDate           *time.Time       `json:"expiryDate"`
	BatchNumber          *string          `json:"batchNumber"`
	Manufacturer         *string          `json:"manufacturer"`
	PrescriptionRequired *bool            `json:"prescriptionRequired"`
	Image                *string          `json:"image"`
}

func (in MedicineInput) apply(m *Medicine) {
	setString(&m.Name, in.Name)
	setString(&m.GenericName, in.GenericName)
	setString(&m.Brand, in.Brand)
	setString(&m.Category, in.Category)
	setString(&m.Description, in.Description)
	setString(&m.Dosage, in.Dosage)
	setString(&m.Form, in.Form)
	setString(&m.BatchNumber, in.BatchNumber)
	setString(&m.Manufacturer, in.Manufacturer)
	setString(&m.Image, in.Image)
	if in.Price != nil {
		m.Price = *in.Price
	}
	if in.MRP != nil {
		m.MRP = *in.MRP
	}
	if in.Discount != nil {
		m.Discount = *in.Discount
	}
	if in.Quantity != nil {
		m.Quantity = *in.Quantity
	}
	if in.MinQuantity != nil {
		m.MinQuantity = *in.MinQuantity
	}
	if in.ExpiryDate != nil {
		m.ExpiryDate = in.ExpiryDate
	}
	if in.PrescriptionRequired != nil {
		m.PrescriptionRequired = *in.PrescriptionRequired
	}
}

type MedicineFilter struct {
	Search   string
	Category string
	// IncludeInactive also returns soft-deleted medicines.
	IncludeInactive bool
}

// StockMatch is an in-stock medicine together with the pharmacy selling it.
type StockMatch struct {
	Medicine     *Medicine `json:"medicine"`
	PharmacyName string    `json:"pharmacyName"`
	Location     string    `json:"location"`
	Contact      string    `json:"contact"`
}

// =========== Cart ===========

// CartItem snapshots price and finalPrice at add time; later catalog changes
// never reach it.
type CartItem struct {
	MedicineID uuid.UUID       `json:"medicineId"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
}

type Cart struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	PharmacyID  uuid.UUID       `json:"pharmacyId"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Recalculate sets TotalAmount to the sum of finalPrice x quantity.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.FinalPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	c.TotalAmount = total.Round(2)
}

func (c *Cart) indexOf(medicineID uuid.UUID) int {
	for i, it := range c.Items {
		if it.MedicineID == medicineID {
			return i
		}
	}
	return -1
}

func (c *Cart) remove(medicineID uuid.UUID) {
	if i := c.indexOf(medicineID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

func (c *Cart) MedicineIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.MedicineID
	}
	return ids
}

// CartLine is a cart item joined with the current catalog entry.
type CartLine struct {
	CartItem
	MedicineName         string `json:"medicineName"`
	Available            int    `json:"available"`
	StockStatus          string `json:"stockStatus"`
	PrescriptionRequired bool   `json:"prescriptionRequired"`
}

type CartView struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	PharmacyID  uuid.UUID       `json:"pharmacyId"`
	Items       []CartLine      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type AddToCartInput struct {
	PharmacyID uuid.UUID `json:"pharmacyId"`
	MedicineID uuid.UUID `json:"medicineId"`
	Quantity   int       `json:"quantity"`
}

// =========== Order ===========

const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusPreparing  = "preparing"
	StatusReady      = "ready"
	StatusDispatched = "dispatched"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

var orderStatuses = map[string]bool{
	StatusPending: true, StatusConfirmed: true, StatusPreparing: true, StatusReady: true,
	StatusDispatched: true, StatusDelivered: true, StatusCancelled: true,
}

const (
	OrderTypeDelivery = "delivery"
	OrderTypePickup   = "pickup"
)

const (
	PaymentCOD    = "cod"
	PaymentOnline = "online"
)

const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

type OrderItem struct {
	MedicineID           uuid.UUID       `json:"medicineId"`
	MedicineName         string          `json:"medicineName"`
	Quantity             int             `json:"quantity"`
	Price                decimal.Decimal `json:"price"`
	FinalPrice           decimal.Decimal `json:"finalPrice"`
	Total                decimal.Decimal `json:"total"`
	PrescriptionRequired bool            `json:"prescriptionRequired,omitempty"`
}

type Address struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Pincode      string `json:"pincode"`
	Landmark     string `json:"landmark,omitempty"`
}

// missing returns the first required field left empty.
func (a *Address) missing() string {
	for _, f := range []struct{ name, v string }{
		{"deliveryAddress.name", a.Name},
		{"deliveryAddress.phone", a.Phone},
		{"deliveryAddress.addressLine1", a.AddressLine1},
		{"deliveryAddress.city", a.City},
		{"deliveryAddress.state", a.State},
		{"deliveryAddress.pincode", a.Pincode},
	} {
		if strings.TrimSpace(f.v) == "" {
			return f.name
		}
	}
	return ""
}

type StatusEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// Order is immutable apart from Status, StatusHistory and PaymentStatus.
type Order struct {
	ID                   uuid.UUID       `json:"id"`
	OrderNumber          string          `json:"orderId"`
	UserID               uuid.UUID       `json:"userId"`
	PharmacyID           uuid.UUID       `json:"pharmacyId"`
	Items                []OrderItem     `json:"items"`
	OrderType            string          `json:"orderType"`
	DeliveryAddress      *Address        `json:"deliveryAddress,omitempty"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	DeliveryFee          decimal.Decimal `json:"deliveryFee"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	Status               string          `json:"status"`
	PaymentMethod        string          `json:"paymentMethod"`
	PaymentStatus        string          `json:"paymentStatus"`
	Notes                string          `json:"notes,omitempty"`
	PrescriptionRequired bool            `json:"prescriptionRequired"`
	StatusHistory        []StatusEntry   `json:"statusHistory"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

// OrderNotice is the new-order event payload. Pharmacy topics are open to
// any connection, so it carries no customer details.
type OrderNotice struct {
	ID                   uuid.UUID       `json:"id"`
	OrderNumber          string          `json:"orderId"`
	OrderType            string          `json:"orderType"`
	Status               string          `json:"status"`
	ItemCount            int             `json:"itemCount"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	PrescriptionRequired bool            `json:"prescriptionRequired"`
	CreatedAt            time.Time       `json:"createdAt"`
}

func (o *Order) Notice() OrderNotice {
	return OrderNotice{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		OrderType:            o.OrderType,
		Status:               o.Status,
		ItemCount:            len(o.Items),
		TotalAmount:          o.TotalAmount,
		PrescriptionRequired: o.PrescriptionRequired,
		CreatedAt:            o.CreatedAt,
	}
}

type CheckoutInput struct {
	PharmacyID      uuid.UUID `json:"pharmacyId"`
	OrderType       string    `json:"orderType"`
	DeliveryAddress *Address  `json:"deliveryAddress"`
	PaymentMethod   string    `json:"paymentMethod"`
	Notes           string    `json:"notes"`
}

type StatusUpdateInput struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewOrderNumber returns a human-readable id: ORD-<base36 millis>-<5 random>.
func NewOrderNumber(now time.Time) string {
	var suffix [5]byte
	for i := range suffix {
		suffix[i] = orderNumberAlphabet[rand.Intn(len(orderNumberAlphabet))]
	}
	return "ORD-" + strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)) + "-" + string(suffix[:])
}

// =========== Pricing ===========

// FeePolicy charges a flat delivery fee below the free-delivery threshold.
type FeePolicy struct {
	DeliveryFee           decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
}

func (p FeePolicy) Fee(orderType string, subtotal decimal.Decimal) decimal.Decimal {
	if orderType != OrderTypeDelivery || !subtotal.LessThan(p.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return p.DeliveryFee
}
