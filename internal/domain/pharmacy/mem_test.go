package pharmacy

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ruralcare/telemed/internal/platform/apperr"
)

// memStore backs the in-memory repositories. memTx serializes units of work
// and restores a snapshot when one fails, giving the same all-or-nothing
// behavior as the Postgres transaction runner.
type memStore struct {
	mu         sync.Mutex
	pharmacies map[uuid.UUID]Pharmacy
	medicines  map[uuid.UUID]Medicine
	carts      map[[2]uuid.UUID]Cart
	orders     map[uuid.UUID]Order
}

func newMemStore() *memStore {
	return &memStore{
		pharmacies: make(map[uuid.UUID]Pharmacy),
		medicines:  make(map[uuid.UUID]Medicine),
		carts:      make(map[[2]uuid.UUID]Cart),
		orders:     make(map[uuid.UUID]Order),
	}
}

func cloneCart(c Cart) Cart {
	c.Items = append([]CartItem{}, c.Items...)
	return c
}

func cloneOrder(o Order) Order {
	o.Items = append([]OrderItem{}, o.Items...)
	o.StatusHistory = append([]StatusEntry{}, o.StatusHistory...)
	if o.DeliveryAddress != nil {
		addr := *o.DeliveryAddress
		o.DeliveryAddress = &addr
	}
	return o
}

type memSnapshot struct {
	pharmacies map[uuid.UUID]Pharmacy
	medicines  map[uuid.UUID]Medicine
	carts      map[[2]uuid.UUID]Cart
	orders     map[uuid.UUID]Order
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		pharmacies: make(map[uuid.UUID]Pharmacy, len(s.pharmacies)),
		medicines:  make(map[uuid.UUID]Medicine, len(s.medicines)),
		carts:      make(map[[2]uuid.UUID]Cart, len(s.carts)),
		orders:     make(map[uuid.UUID]Order, len(s.orders)),
	}
	for k, v := range s.pharmacies {
		snap.pharmacies[k] = v
	}
	for k, v := range s.medicines {
		snap.medicines[k] = v
	}
	for k, v := range s.carts {
		snap.carts[k] = cloneCart(v)
	}
	for k, v := range s.orders {
		snap.orders[k] = cloneOrder(v)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pharmacies = snap.pharmacies
	s.medicines = snap.medicines
	s.carts = snap.carts
	s.orders = snap.orders
}

type memTx struct {
	mu    sync.Mutex
	store *memStore
}

func (t *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// -- pharmacies --

type memPharmacies struct{ *memStore }

func (r memPharmacies) Create(_ context.Context, p *Pharmacy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.pharmacies {
		if existing.OwnerID == p.OwnerID {
			return apperr.Conflict(apperr.CodeDuplicate, "owner already has a pharmacy")
		}
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	r.pharmacies[p.ID] = *p
	return nil
}

func (r memPharmacies) GetByID(_ context.Context, id uuid.UUID) (*Pharmacy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pharmacies[id]
	if !ok {
		return nil, apperr.NotFound("pharmacy", id.String())
	}
	return &p, nil
}

func (r memPharmacies) GetByOwner(_ context.Context, ownerID uuid.UUID) (*Pharmacy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pharmacies {
		if p.OwnerID == ownerID {
			return &p, nil
		}
	}
	return nil, apperr.NotFound("pharmacy", ownerID.String())
}

func (r memPharmacies) Update(_ context.Context, p *Pharmacy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pharmacies[p.ID]; !ok {
		return apperr.NotFound("pharmacy", p.ID.String())
	}
	p.UpdatedAt = time.Now()
	r.pharmacies[p.ID] = *p
	return nil
}

func (r memPharmacies) List(_ context.Context, f PharmacyFilter, limit, offset int) ([]*Pharmacy, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Pharmacy
	for _, p := range r.pharmacies {
		p := p
		if !p.IsActive {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Location), strings.ToLower(f.Search)) {
			continue
		}
		if f.Location != "" && !strings.Contains(strings.ToLower(p.Location), strings.ToLower(f.Location)) {
			continue
		}
		all = append(all, &p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return window(all, limit, offset), len(all), nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// -- medicines --

type memMedicines struct{ *memStore }

func (r memMedicines) Create(_ context.Context, m *Medicine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.medicines {
		if existing.PharmacyID == m.PharmacyID && existing.Name == m.Name {
			return apperr.Conflict(apperr.CodeDuplicate, "medicine %q already exists in this pharmacy", m.Name)
		}
	}
	m.CreatedAt, m.UpdatedAt = time.Now(), time.Now()
	r.medicines[m.ID] = *m
	return nil
}

func (r memMedicines) GetByID(_ context.Context, id uuid.UUID) (*Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medicines[id]
	if !ok {
		return nil, apperr.NotFound("medicine", id.String())
	}
	return &m, nil
}

func (r memMedicines) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]*Medicine, len(ids))
	for _, id := range ids {
		if m, ok := r.medicines[id]; ok {
			out[id] = &m
		}
	}
	return out, nil
}

func (r memMedicines) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	return r.GetMany(ctx, ids)
}

func (r memMedicines) Update(_ context.Context, m *Medicine, quantity *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.medicines[m.ID]
	if !ok {
		return apperr.NotFound("medicine", m.ID.String())
	}
	m.Quantity = cur.Quantity
	if quantity != nil {
		m.Quantity = *quantity
	}
	m.UpdatedAt = time.Now()
	r.medicines[m.ID] = *m
	return nil
}

func (r memMedicines) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medicines[id]
	if !ok {
		return apperr.NotFound("medicine", id.String())
	}
	m.IsActive = false
	r.medicines[id] = m
	return nil
}

func (r memMedicines) DecrementStock(_ context.Context, id uuid.UUID, qty int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.medicines[id]
	if !ok || m.Quantity < qty {
		return 0, apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock")
	}
	m.Quantity -= qty
	r.medicines[id] = m
	return m.Quantity, nil
}

func (r memMedicines) ListByPharmacy(_ context.Context, pharmacyID uuid.UUID, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Medicine
	for _, m := range r.medicines {
		m := m
		if m.PharmacyID != pharmacyID || (!m.IsActive && !f.IncludeInactive) {
			continue
		}
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(f.Search)) {
			continue
		}
		all = append(all, &m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return window(all, limit, offset), len(all), nil
}

func (r memMedicines) SearchInStock(_ context.Context, name string, limit int) ([]*StockMatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*StockMatch
	for _, m := range r.medicines {
		m := m
		if !m.IsActive || m.Quantity <= 0 || !strings.Contains(strings.ToLower(m.Name), strings.ToLower(name)) {
			continue
		}
		p := r.pharmacies[m.PharmacyID]
		out = append(out, &StockMatch{Medicine: &m, PharmacyName: p.Name, Location: p.Location, Contact: p.Contact})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Medicine.Price.LessThan(out[j].Medicine.Price) })
	return window(out, limit, 0), nil
}

// -- carts --

type memCarts struct{ *memStore }

func (r memCarts) Get(_ context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[[2]uuid.UUID{userID, pharmacyID}]
	if !ok {
		return nil, apperr.NotFound("cart", pharmacyID.String())
	}
	c = cloneCart(c)
	return &c, nil
}

func (r memCarts) GetForUpdate(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	return r.Get(ctx, userID, pharmacyID)
}

func (r memCarts) LockOrCreate(_ context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uuid.UUID{userID, pharmacyID}
	c, ok := r.carts[key]
	if !ok {
		c = Cart{ID: uuid.New(), UserID: userID, PharmacyID: pharmacyID, Items: []CartItem{}, UpdatedAt: time.Now()}
		r.carts[key] = c
	}
	c = cloneCart(c)
	return &c, nil
}

func (r memCarts) Save(_ context.Context, c *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.UpdatedAt = time.Now()
	r.carts[[2]uuid.UUID{c.UserID, c.PharmacyID}] = cloneCart(*c)
	return nil
}

// -- orders --

type memOrders struct{ *memStore }

func (r memOrders) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.CreatedAt, o.UpdatedAt = time.Now(), time.Now()
	r.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (r memOrders) GetByID(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.NotFound("order", id.String())
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r memOrders) GetByNumber(_ context.Context, number string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.OrderNumber == number {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, apperr.NotFound("order", number)
}

func (r memOrders) list(match func(Order) bool, limit, offset int) ([]*Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Order
	for _, o := range r.orders {
		if match(o) {
			o := cloneOrder(o)
			all = append(all, &o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, limit, offset), len(all), nil
}

func (r memOrders) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return r.list(func(o Order) bool { return o.UserID == userID }, limit, offset)
}

func (r memOrders) ListByPharmacy(_ context.Context, pharmacyID uuid.UUID, status string, limit, offset int) ([]*Order, int, error) {
	return r.list(func(o Order) bool {
		return o.PharmacyID == pharmacyID && (status == "" || o.Status == status)
	}, limit, offset)
}

func (r memOrders) UpdateStatus(_ context.Context, id uuid.UUID, from string, entry StatusEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return apperr.NotFound("order", id.String())
	}
	if o.Status != from {
		return apperr.Conflict(apperr.CodeInvalidTransition, "order status changed concurrently")
	}
	o = cloneOrder(o)
	o.Status = entry.Status
	o.StatusHistory = append(o.StatusHistory, entry)
	o.UpdatedAt = time.Now()
	r.orders[id] = o
	return nil
}
