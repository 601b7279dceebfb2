package pharmacy

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/db"
	"github.com/ruralcare/telemed/internal/platform/events"
	"github.com/ruralcare/telemed/internal/platform/metrics"
)

const stockSearchLimit = 50

// Config carries the order pipeline policy values.
type Config struct {
	Fees         FeePolicy
	StatusPolicy StatusPolicy
}

// DefaultConfig charges 50 below a subtotal of 500 and uses the strict policy.
func DefaultConfig() Config {
	return Config{
		Fees: FeePolicy{
			DeliveryFee:           decimal.NewFromInt(50),
			FreeDeliveryThreshold: decimal.NewFromInt(500),
		},
		StatusPolicy: PolicyStrict,
	}
}

type Service struct {
	pharmacies PharmacyRepository
	medicines  MedicineRepository
	carts      CartRepository
	orders     OrderRepository
	tx         db.TxRunner
	events     events.Publisher
	metrics    *metrics.Collector
	cfg        Config
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(
	pharmacies PharmacyRepository,
	medicines MedicineRepository,
	carts CartRepository,
	orders OrderRepository,
	tx db.TxRunner,
	publisher events.Publisher,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.Nop
	}
	if cfg.StatusPolicy == "" {
		cfg.StatusPolicy = PolicyStrict
	}
	return &Service{
		pharmacies: pharmacies,
		medicines:  medicines,
		carts:      carts,
		orders:     orders,
		tx:         tx,
		events:     publisher,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetMetrics attaches an optional collector.
func (s *Service) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// publish sends an event after the state change committed. Failures are
// logged only.
func (s *Service) publish(ctx context.Context, name, topic string, data interface{}) {
	if err := s.events.Publish(ctx, events.New(name, topic, data)); err != nil {
		s.logger.Warn().Err(err).Str("event", name).Str("topic", topic).Msg("event publish failed")
	}
}

// -- Pharmacy --

func (s *Service) CreatePharmacy(ctx context.Context, ownerID uuid.UUID, in PharmacyInput) (*Pharmacy, error) {
	p := &Pharmacy{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		IsActive:          true,
		DeliveryAvailable: true,
		DeliveryRadiusKM:  5,
		OpeningHours:      OpeningHours{Open: "09:00", Close: "21:00"},
	}
	in.apply(p)
	switch {
	case p.Name == "":
		return nil, apperr.MissingField("name")
	case p.Location == "":
		return nil, apperr.MissingField("location")
	case p.Address == "":
		return nil, apperr.MissingField("address")
	case p.Contact == "":
		return nil, apperr.MissingField("contact")
	}

	if _, err := s.pharmacies.GetByOwner(ctx, ownerID); err == nil {
		return nil, apperr.Conflict(apperr.CodeDuplicate, "owner already has a pharmacy")
	} else if !apperr.IsKind(err, apperr.KindNotFound) {
		return nil, err
	}

	if err := s.pharmacies.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("pharmacy_id", p.ID.String()).Str("owner_id", ownerID.String()).Msg("pharmacy created")
	return p, nil
}

func (s *Service) GetPharmacy(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	return s.pharmacies.GetByID(ctx, id)
}

// MyPharmacy returns the pharmacy owned by ownerID.
func (s *Service) MyPharmacy(ctx context.Context, ownerID uuid.UUID) (*Pharmacy, error) {
	return s.pharmacies.GetByOwner(ctx, ownerID)
}

func (s *Service) UpdatePharmacy(ctx context.Context, ownerID uuid.UUID, in PharmacyInput) (*Pharmacy, error) {
	p, err := s.pharmacies.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	in.apply(p)
	if p.Name == "" {
		return nil, apperr.MissingField("name")
	}
	if err := s.pharmacies.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListPharmacies(ctx context.Context, f PharmacyFilter, limit, offset int) ([]*Pharmacy, int, error) {
	return s.pharmacies.List(ctx, f, limit, offset)
}

// -- Medicine --

func validateMedicine(m *Medicine) error {
	switch {
	case m.Name == "":
		return apperr.MissingField("medicineName")
	case m.Price.IsNegative():
		return apperr.Validation(apperr.CodeInvalidInput, "price must not be negative")
	case m.Discount.IsNegative() || m.Discount.GreaterThan(hundred):
		return apperr.Validation(apperr.CodeInvalidInput, "discount must be between 0 and 100")
	case m.Quantity < 0:
		return apperr.Validation(apperr.CodeInvalidInput, "quantity must not be negative")
	case m.MinQuantity < 0:
		return apperr.Validation(apperr.CodeInvalidInput, "minQuantity must not be negative")
	case !validForms[m.Form]:
		return apperr.Validation(apperr.CodeInvalidInput, "invalid form %q", m.Form)
	}
	return nil
}

// ownedMedicine loads a medicine and checks it belongs to ownerID's pharmacy.
func (s *Service) ownedMedicine(ctx context.Context, ownerID, medicineID uuid.UUID) (*Pharmacy, *Medicine, error) {
	p, err := s.pharmacies.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.medicines.GetByID(ctx, medicineID)
	if err != nil {
		return nil, nil, err
	}
	if m.PharmacyID != p.ID {
		return nil, nil, apperr.Forbidden("medicine belongs to another pharmacy")
	}
	return p, m, nil
}

func (s *Service) AddMedicine(ctx context.Context, ownerID uuid.UUID, in MedicineInput) (*Medicine, error) {
	p, err := s.pharmacies.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if in.Price == nil {
		return nil, apperr.MissingField("price")
	}
	if in.Quantity == nil {
		return nil, apperr.MissingField("quantity")
	}

	m := &Medicine{
		ID:          uuid.New(),
		PharmacyID:  p.ID,
		Category:    defaultCategory,
		Form:        defaultForm,
		MinQuantity: defaultMinQuantity,
		IsActive:    true,
	}
	in.apply(m)
	if m.MRP.IsZero() {
		m.MRP = m.Price
	}
	if err := validateMedicine(m); err != nil {
		return nil, err
	}
	if err := s.medicines.Create(ctx, m); err != nil {
		return nil, err
	}

	s.publish(ctx, events.MedicineAdded, events.PharmacyTopic(p.ID.String()), m)
	return m, nil
}

// UpdateMedicine applies the owner's changes under the row lock checkout
// takes. Stock is only written when the input carries a quantity, so a
// catalog edit never undoes units sold meanwhile.
func (s *Service) UpdateMedicine(ctx context.Context, ownerID, medicineID uuid.UUID, in MedicineInput) (*Medicine, error) {
	p, err := s.pharmacies.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var m *Medicine
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		meds, err := s.medicines.LockMany(ctx, []uuid.UUID{medicineID})
		if err != nil {
			return err
		}
		var ok bool
		if m, ok = meds[medicineID]; !ok {
			return apperr.NotFound("medicine", medicineID.String())
		}
		if m.PharmacyID != p.ID {
			return apperr.Forbidden("medicine belongs to another pharmacy")
		}
		in.apply(m)
		if err := validateMedicine(m); err != nil {
			return err
		}
		return s.medicines.Update(ctx, m, in.Quantity)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.StockUpdated, events.PharmacyTopic(p.ID.String()), stockChange(m))
	return m, nil
}

// DeleteMedicine hides the medicine from listings. Existing carts and
// orders keep their snapshots.
func (s *Service) DeleteMedicine(ctx context.Context, ownerID, medicineID uuid.UUID) error {
	p, m, err := s.ownedMedicine(ctx, ownerID, medicineID)
	if err != nil {
		return err
	}
	if err := s.medicines.Deactivate(ctx, m.ID); err != nil {
		return err
	}
	s.publish(ctx, events.MedicineRemoved, events.PharmacyTopic(p.ID.String()),
		map[string]string{"medicineId": m.ID.String(), "medicineName": m.Name})
	return nil
}

// MyMedicines lists the owner's catalog, inactive entries included.
func (s *Service) MyMedicines(ctx context.Context, ownerID uuid.UUID, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	p, err := s.pharmacies.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}
	f.IncludeInactive = true
	return s.medicines.ListByPharmacy(ctx, p.ID, f, limit, offset)
}

// ListMedicines is the public catalog of a pharmacy.
func (s *Service) ListMedicines(ctx context.Context, pharmacyID uuid.UUID, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	if _, err := s.pharmacies.GetByID(ctx, pharmacyID); err != nil {
		return nil, 0, err
	}
	f.IncludeInactive = false
	return s.medicines.ListByPharmacy(ctx, pharmacyID, f, limit, offset)
}

// SearchStock finds pharmacies holding name in stock, cheapest first.
func (s *Service) SearchStock(ctx context.Context, name string) ([]*StockMatch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.MissingField("name")
	}
	return s.medicines.SearchInStock(ctx, name, stockSearchLimit)
}

type stockPayload struct {
	MedicineID   string `json:"medicineId"`
	MedicineName string `json:"medicineName"`
	Quantity     int    `json:"quantity"`
	StockStatus  string `json:"stockStatus"`
}

func stockChange(m *Medicine) stockPayload {
	return stockPayload{
		MedicineID:   m.ID.String(),
		MedicineName: m.Name,
		Quantity:     m.Quantity,
		StockStatus:  m.StockStatus(),
	}
}
