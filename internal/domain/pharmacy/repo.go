package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type PharmacyRepository interface {
	Create(ctx context.Context, p *Pharmacy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Pharmacy, error)
	Update(ctx context.Context, p *Pharmacy) error
	List(ctx context.Context, f PharmacyFilter, limit, offset int) ([]*Pharmacy, int, error)
}

type MedicineRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	// GetMany returns the medicines that exist among ids, keyed by id.
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error)
	// LockMany is GetMany with the rows locked for the rest of the
	// transaction, acquired in id order.
	LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error)
	// Update writes the catalog fields of m. Quantity is written only when
	// quantity is non-nil; m.Quantity is refreshed from the row either way.
	Update(ctx context.Context, m *Medicine, quantity *int) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	// DecrementStock subtracts qty only if at least qty is on hand and returns
	// the new quantity. Otherwise it fails with INSUFFICIENT_STOCK.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (int, error)
	ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID, f MedicineFilter, limit, offset int) ([]*Medicine, int, error)
	SearchInStock(ctx context.Context, name string, limit int) ([]*StockMatch, error)
}

type CartRepository interface {
	// Get fails with NotFound when the user has no cart at the pharmacy.
	Get(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error)
	// GetForUpdate is Get with the cart row locked for the transaction.
	GetForUpdate(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error)
	// LockOrCreate inserts an empty cart when the user has none at the
	// pharmacy and returns the row locked for the transaction.
	LockOrCreate(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error)
	// Save upserts the cart on (user, pharmacy).
	Save(ctx context.Context, c *Cart) error
}

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error)
	ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID, status string, limit, offset int) ([]*Order, int, error)
	// UpdateStatus appends entry and sets the status only while the order is
	// still in status from. A concurrent change fails with INVALID_TRANSITION.
	UpdateStatus(ctx context.Context, id uuid.UUID, from string, entry StatusEntry) error
}
