package pharmacy

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/events"
	"github.com/ruralcare/telemed/internal/platform/metrics"
)

const noteOrderCreated = "Order created"

func validateCheckout(in *CheckoutInput) error {
	if in.PharmacyID == uuid.Nil {
		return apperr.MissingField("pharmacyId")
	}
	switch in.OrderType {
	case "":
		return apperr.MissingField("orderType")
	case OrderTypeDelivery:
		if in.DeliveryAddress == nil {
			return apperr.MissingField("deliveryAddress")
		}
		if field := in.DeliveryAddress.missing(); field != "" {
			return apperr.MissingField(field)
		}
	case OrderTypePickup:
		in.DeliveryAddress = nil
	default:
		return apperr.Validation(apperr.CodeInvalidInput, "invalid orderType %q", in.OrderType)
	}
	switch in.PaymentMethod {
	case "":
		in.PaymentMethod = PaymentCOD
	case PaymentCOD, PaymentOnline:
	default:
		return apperr.Validation(apperr.CodeInvalidInput, "invalid paymentMethod %q", in.PaymentMethod)
	}
	in.Notes = strings.TrimSpace(in.Notes)
	return nil
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCreated
	case apperr.HasCode(err, apperr.CodeEmptyCart):
		return metrics.OutcomeEmptyCart
	case apperr.HasCode(err, apperr.CodeInsufficientStock):
		return metrics.OutcomeInsufficientStock
	default:
		return metrics.OutcomeError
	}
}

// Checkout converts the user's cart at a pharmacy into an order. Stock
// re-check, order insert, stock decrement and cart clear commit together or
// not at all. Events go out after commit.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, in CheckoutInput) (*Order, error) {
	if err := validateCheckout(&in); err != nil {
		return nil, err
	}

	var (
		order     *Order
		remaining = make(map[uuid.UUID]*Medicine)
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetForUpdate(ctx, userID, in.PharmacyID)
		if apperr.IsKind(err, apperr.KindNotFound) || (err == nil && len(cart.Items) == 0) {
			return apperr.Conflict(apperr.CodeEmptyCart, "cart is empty")
		}
		if err != nil {
			return err
		}

		meds, err := s.medicines.LockMany(ctx, cart.MedicineIDs())
		if err != nil {
			return err
		}
		for _, it := range cart.Items {
			m, ok := meds[it.MedicineID]
			if !ok || !m.IsActive {
				return apperr.NotFound("medicine", it.MedicineID.String())
			}
			if m.Quantity < it.Quantity {
				return insufficientStock(m, it.Quantity)
			}
		}

		order = s.buildOrder(userID, in, cart, meds)
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}

		for _, it := range order.Items {
			left, err := s.medicines.DecrementStock(ctx, it.MedicineID, it.Quantity)
			if err != nil {
				if apperr.HasCode(err, apperr.CodeInsufficientStock) {
					return insufficientStock(meds[it.MedicineID], it.Quantity)
				}
				return err
			}
			m := *meds[it.MedicineID]
			m.Quantity = left
			remaining[m.ID] = &m
		}

		cart.Items = []CartItem{}
		cart.Recalculate()
		return s.carts.Save(ctx, cart)
	})
	s.metrics.Checkout(checkoutOutcome(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("order", order.OrderNumber).
		Str("user_id", userID.String()).
		Str("pharmacy_id", in.PharmacyID.String()).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order created")

	topic := events.PharmacyTopic(in.PharmacyID.String())
	s.publish(ctx, events.NewOrder, topic, order.Notice())
	for _, it := range order.Items {
		s.publish(ctx, events.StockUpdated, topic, stockChange(remaining[it.MedicineID]))
	}
	return order, nil
}

// buildOrder snapshots the cart lines into an order. Names come from the
// locked catalog rows; prices stay as they were when added to the cart.
func (s *Service) buildOrder(userID uuid.UUID, in CheckoutInput, cart *Cart, meds map[uuid.UUID]*Medicine) *Order {
	items := lo.Map(cart.Items, func(it CartItem, _ int) OrderItem {
		m := meds[it.MedicineID]
		return OrderItem{
			MedicineID:           it.MedicineID,
			MedicineName:         m.Name,
			Quantity:             it.Quantity,
			Price:                it.Price,
			FinalPrice:           it.FinalPrice,
			Total:                it.FinalPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
			PrescriptionRequired: m.PrescriptionRequired,
		}
	})
	subtotal := lo.Reduce(items, func(acc decimal.Decimal, it OrderItem, _ int) decimal.Decimal {
		return acc.Add(it.Total)
	}, decimal.Zero)
	fee := s.cfg.Fees.Fee(in.OrderType, subtotal)
	now := s.now().UTC()

	return &Order{
		ID:                   uuid.New(),
		OrderNumber:          NewOrderNumber(now),
		UserID:               userID,
		PharmacyID:           in.PharmacyID,
		Items:                items,
		OrderType:            in.OrderType,
		DeliveryAddress:      in.DeliveryAddress,
		Subtotal:             subtotal,
		DeliveryFee:          fee,
		TotalAmount:          subtotal.Add(fee),
		Status:               StatusPending,
		PaymentMethod:        in.PaymentMethod,
		PaymentStatus:        PaymentPending,
		Notes:                in.Notes,
		PrescriptionRequired: lo.SomeBy(items, func(it OrderItem) bool { return it.PrescriptionRequired }),
		StatusHistory:        []StatusEntry{{Status: StatusPending, Timestamp: now, Note: noteOrderCreated}},
	}
}

// findOrder resolves ref as a row id or a human-readable order number.
func (s *Service) findOrder(ctx context.Context, ref string) (*Order, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.orders.GetByID(ctx, id)
	}
	return s.orders.GetByNumber(ctx, ref)
}

// GetOrder returns an order to its customer or to the pharmacy that owns it.
func (s *Service) GetOrder(ctx context.Context, caller auth.Identity, ref string) (*Order, error) {
	o, err := s.findOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	if o.UserID.String() == caller.UserID {
		return o, nil
	}
	if caller.Role == auth.RolePharmacy {
		p, err := s.pharmacies.GetByID(ctx, o.PharmacyID)
		if err != nil {
			return nil, err
		}
		if p.OwnerID.String() == caller.UserID {
			return o, nil
		}
	}
	return nil, apperr.Forbidden("not allowed to view this order")
}

func (s *Service) ListCustomerOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return s.orders.ListByUser(ctx, userID, limit, offset)
}

// ListPharmacyOrders lists the owner's incoming orders, optionally by status.
func (s *Service) ListPharmacyOrders(ctx context.Context, ownerID uuid.UUID, status string, limit, offset int) ([]*Order, int, error) {
	if status != "" && !orderStatuses[status] {
		return nil, 0, apperr.Validation(apperr.CodeInvalidInput, "invalid status %q", status)
	}
	p, err := s.pharmacies.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	return s.orders.ListByPharmacy(ctx, p.ID, status, limit, offset)
}

// UpdateOrderStatus moves an order of the owner's pharmacy to a new status
// and appends it to the history. The write only lands if the status is
// still the one the policy check saw.
func (s *Service) UpdateOrderStatus(ctx context.Context, ownerID uuid.UUID, ref string, in StatusUpdateInput) (*Order, error) {
	if in.Status == "" {
		return nil, apperr.MissingField("status")
	}
	o, err := s.findOrder(ctx, ref)
	if err != nil {
		return nil, err
	}
	p, err := s.pharmacies.GetByID(ctx, o.PharmacyID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, apperr.Forbidden("order belongs to another pharmacy")
	}
	if !s.cfg.StatusPolicy.Allows(o, in.Status) {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition,
			"cannot move order from %s to %s", o.Status, in.Status).
			WithDetail("from", o.Status).
			WithDetail("to", in.Status)
	}

	entry := StatusEntry{Status: in.Status, Timestamp: s.now().UTC(), Note: strings.TrimSpace(in.Note)}
	if err := s.orders.UpdateStatus(ctx, o.ID, o.Status, entry); err != nil {
		return nil, err
	}
	s.metrics.OrderStatus(in.Status)

	o, err = s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"orderId":    o.OrderNumber,
		"id":         o.ID.String(),
		"status":     o.Status,
		"note":       entry.Note,
		"pharmacyId": o.PharmacyID.String(),
	}
	s.publish(ctx, events.OrderStatusUpdated, events.UserTopic(o.UserID.String()), payload)
	s.publish(ctx, events.OrderStatusUpdated, events.PharmacyTopic(o.PharmacyID.String()), payload)
	return o, nil
}
