package pharmacy

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ruralcare/telemed/internal/platform/apperr"
)

// Cart mutations run in a transaction holding the cart row lock, so two
// requests from the same user cannot lose each other's lines. Adding to a
// cart that does not exist yet creates the row first so there is one to lock.

// GetCart returns the user's cart at the pharmacy joined with the current
// catalog. A user without a cart gets an empty one.
func (s *Service) GetCart(ctx context.Context, userID, pharmacyID uuid.UUID) (*CartView, error) {
	c, err := s.carts.Get(ctx, userID, pharmacyID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		if _, err := s.pharmacies.GetByID(ctx, pharmacyID); err != nil {
			return nil, err
		}
		c = emptyCart(userID, pharmacyID)
	} else if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

func emptyCart(userID, pharmacyID uuid.UUID) *Cart {
	return &Cart{UserID: userID, PharmacyID: pharmacyID, Items: []CartItem{}, TotalAmount: decimal.Zero}
}

// lockCart loads the cart for update, creating an empty one if needed.
func (s *Service) lockCart(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	c, err := s.carts.LockOrCreate(ctx, userID, pharmacyID)
	if err != nil {
		return nil, err
	}
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	return c, nil
}

// stockedMedicine loads a sellable medicine of pharmacyID and checks that qty
// units are on hand right now.
func (s *Service) stockedMedicine(ctx context.Context, pharmacyID, medicineID uuid.UUID, qty int) (*Medicine, error) {
	m, err := s.medicines.GetByID(ctx, medicineID)
	if err != nil {
		return nil, err
	}
	if m.PharmacyID != pharmacyID || !m.IsActive {
		return nil, apperr.NotFound("medicine", medicineID.String())
	}
	if m.Quantity < qty {
		return nil, insufficientStock(m, qty)
	}
	return m, nil
}

func insufficientStock(m *Medicine, requested int) error {
	return apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock for %s", m.Name).
		WithDetail("medicineId", m.ID.String()).
		WithDetail("medicineName", m.Name).
		WithDetail("available", m.Quantity).
		WithDetail("requested", requested)
}

func (s *Service) AddItem(ctx context.Context, userID uuid.UUID, in AddToCartInput) (*CartView, error) {
	switch {
	case in.PharmacyID == uuid.Nil:
		return nil, apperr.MissingField("pharmacyId")
	case in.MedicineID == uuid.Nil:
		return nil, apperr.MissingField("medicineId")
	case in.Quantity < 1:
		return nil, apperr.Validation(apperr.CodeInvalidInput, "quantity must be at least 1")
	}

	var cart *Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		m, err := s.stockedMedicine(ctx, in.PharmacyID, in.MedicineID, in.Quantity)
		if err != nil {
			return err
		}
		c, err := s.lockCart(ctx, userID, in.PharmacyID)
		if err != nil {
			return err
		}

		if i := c.indexOf(m.ID); i >= 0 {
			c.Items[i].Quantity += in.Quantity
		} else {
			c.Items = append(c.Items, CartItem{
				MedicineID: m.ID,
				Quantity:   in.Quantity,
				Price:      m.Price,
				FinalPrice: m.FinalPrice(),
			})
		}
		c.Recalculate()
		cart = c
		return s.carts.Save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// UpdateItem overwrites a line's quantity, keeping its price snapshot. A
// quantity of zero or less removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, pharmacyID, medicineID uuid.UUID, qty int) (*CartView, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, pharmacyID, medicineID)
	}

	var cart *Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.stockedMedicine(ctx, pharmacyID, medicineID, qty); err != nil {
			return err
		}
		c, err := s.carts.GetForUpdate(ctx, userID, pharmacyID)
		if err != nil {
			return err
		}
		i := c.indexOf(medicineID)
		if i < 0 {
			return apperr.NotFound("cart item", medicineID.String())
		}
		c.Items[i].Quantity = qty
		c.Recalculate()
		cart = c
		return s.carts.Save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *Service) RemoveItem(ctx context.Context, userID, pharmacyID, medicineID uuid.UUID) (*CartView, error) {
	return s.mutateCart(ctx, userID, pharmacyID, func(c *Cart) { c.remove(medicineID) })
}

func (s *Service) ClearCart(ctx context.Context, userID, pharmacyID uuid.UUID) (*CartView, error) {
	return s.mutateCart(ctx, userID, pharmacyID, func(c *Cart) { c.Items = []CartItem{} })
}

// mutateCart applies fn to an existing cart. A missing cart is left missing.
func (s *Service) mutateCart(ctx context.Context, userID, pharmacyID uuid.UUID, fn func(*Cart)) (*CartView, error) {
	var cart *Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.carts.GetForUpdate(ctx, userID, pharmacyID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			cart = emptyCart(userID, pharmacyID)
			return nil
		}
		if err != nil {
			return err
		}
		fn(c)
		c.Recalculate()
		cart = c
		return s.carts.Save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// view joins cart lines with the catalog. Lines whose medicine has since
// disappeared keep their snapshot and report zero availability.
func (s *Service) view(ctx context.Context, c *Cart) (*CartView, error) {
	meds, err := s.medicines.GetMany(ctx, c.MedicineIDs())
	if err != nil {
		return nil, err
	}
	lines := lo.Map(c.Items, func(it CartItem, _ int) CartLine {
		line := CartLine{CartItem: it, StockStatus: StockOut}
		if m, ok := meds[it.MedicineID]; ok {
			line.MedicineName = m.Name
			line.Available = m.Quantity
			line.StockStatus = m.StockStatus()
			line.PrescriptionRequired = m.PrescriptionRequired
			if !m.IsActive {
				line.Available = 0
				line.StockStatus = StockOut
			}
		}
		return line
	})
	return &CartView{
		ID:          c.ID,
		UserID:      c.UserID,
		PharmacyID:  c.PharmacyID,
		Items:       lines,
		TotalAmount: c.TotalAmount,
		UpdatedAt:   c.UpdatedAt,
	}, nil
}
