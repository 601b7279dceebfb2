package pharmacy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/db"
)

// Monetary columns are NUMERIC. Values are written as decimal strings and
// scanned through decimal.Decimal's sql.Scanner.

// =========== Pharmacy Repository ===========

type pharmacyRepoPG struct{ pool *pgxpool.Pool }

func NewPharmacyRepoPG(pool *pgxpool.Pool) PharmacyRepository { return &pharmacyRepoPG{pool: pool} }

func (r *pharmacyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const pharmacyCols = `id, owner_id, name, location, address, contact, email, description, image,
	is_active, open_time, close_time, delivery_available, delivery_radius_km,
	rating_average, rating_count, created_at, updated_at`

func scanPharmacy(row pgx.Row) (*Pharmacy, error) {
	var p Pharmacy
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Location, &p.Address, &p.Contact, &p.Email,
		&p.Description, &p.Image, &p.IsActive, &p.OpeningHours.Open, &p.OpeningHours.Close,
		&p.DeliveryAvailable, &p.DeliveryRadiusKM, &p.Rating.Average, &p.Rating.Count,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *pharmacyRepoPG) Create(ctx context.Context, p *Pharmacy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pharmacies (id, owner_id, name, location, address, contact, email, description, image,
			is_active, open_time, close_time, delivery_available, delivery_radius_km)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at, updated_at`,
		p.ID, p.OwnerID, p.Name, p.Location, p.Address, p.Contact, p.Email, p.Description, p.Image,
		p.IsActive, p.OpeningHours.Open, p.OpeningHours.Close, p.DeliveryAvailable, p.DeliveryRadiusKM,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "pharmacies_owner_id_key") {
		return apperr.Conflict(apperr.CodeDuplicate, "owner already has a pharmacy")
	}
	if err != nil {
		return fmt.Errorf("insert pharmacy: %w", err)
	}
	return nil
}

func (r *pharmacyRepoPG) get(ctx context.Context, where string, arg uuid.UUID) (*Pharmacy, error) {
	p, err := scanPharmacy(r.conn(ctx).QueryRow(ctx, `SELECT `+pharmacyCols+` FROM pharmacies WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("pharmacy", arg.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get pharmacy: %w", err)
	}
	return p, nil
}

func (r *pharmacyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pharmacy, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *pharmacyRepoPG) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Pharmacy, error) {
	return r.get(ctx, `owner_id = $1`, ownerID)
}

func (r *pharmacyRepoPG) Update(ctx context.Context, p *Pharmacy) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE pharmacies SET name=$2, location=$3, address=$4, contact=$5, email=$6, description=$7,
			image=$8, is_active=$9, open_time=$10, close_time=$11, delivery_available=$12,
			delivery_radius_km=$13, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.Name, p.Location, p.Address, p.Contact, p.Email, p.Description, p.Image, p.IsActive,
		p.OpeningHours.Open, p.OpeningHours.Close, p.DeliveryAvailable, p.DeliveryRadiusKM,
	).Scan(&p.UpdatedAt)
	if db.IsNoRows(err) {
		return apperr.NotFound("pharmacy", p.ID.String())
	}
	if err != nil {
		return fmt.Errorf("update pharmacy: %w", err)
	}
	return nil
}

func (r *pharmacyRepoPG) List(ctx context.Context, f PharmacyFilter, limit, offset int) ([]*Pharmacy, int, error) {
	where := ` WHERE is_active`
	var args []interface{}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND (name ILIKE $%d OR location ILIKE $%d OR address ILIKE $%d)`,
			len(args), len(args), len(args))
	}
	if f.Location != "" {
		args = append(args, "%"+f.Location+"%")
		where += fmt.Sprintf(` AND location ILIKE $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM pharmacies`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pharmacies: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+pharmacyCols+` FROM pharmacies`+where+
		fmt.Sprintf(` ORDER BY rating_average DESC, name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pharmacies: %w", err)
	}
	defer rows.Close()

	var items []*Pharmacy
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Medicine Repository ===========

type medicineRepoPG struct{ pool *pgxpool.Pool }

func NewMedicineRepoPG(pool *pgxpool.Pool) MedicineRepository { return &medicineRepoPG{pool: pool} }

func (r *medicineRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const medicineCols = `m.id, m.pharmacy_id, m.name, m.generic_name, m.brand, m.category, m.description,
	m.dosage, m.form, m.price, m.mrp, m.discount, m.quantity, m.min_quantity, m.expiry_date,
	m.batch_number, m.manufacturer, m.prescription_required, m.is_active, m.image,
	m.created_at, m.updated_at`

func medicineDest(m *Medicine) []interface{} {
	return []interface{}{&m.ID, &m.PharmacyID, &m.Name, &m.GenericName, &m.Brand, &m.Category,
		&m.Description, &m.Dosage, &m.Form, &m.Price, &m.MRP, &m.Discount, &m.Quantity,
		&m.MinQuantity, &m.ExpiryDate, &m.BatchNumber, &m.Manufacturer, &m.PrescriptionRequired,
		&m.IsActive, &m.Image, &m.CreatedAt, &m.UpdatedAt}
}

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(medicineDest(&m)...)
	return &m, err
}

func (r *medicineRepoPG) Create(ctx context.Context, m *Medicine) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicines (id, pharmacy_id, name, generic_name, brand, category, description, dosage,
			form, price, mrp, discount, quantity, min_quantity, expiry_date, batch_number, manufacturer,
			prescription_required, is_active, image)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		RETURNING created_at, updated_at`,
		m.ID, m.PharmacyID, m.Name, m.GenericName, m.Brand, m.Category, m.Description, m.Dosage,
		m.Form, m.Price.String(), m.MRP.String(), m.Discount.String(), m.Quantity, m.MinQuantity,
		m.ExpiryDate, m.BatchNumber, m.Manufacturer, m.PrescriptionRequired, m.IsActive, m.Image,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if db.IsUniqueViolation(err, "medicines_pharmacy_name_key") {
		return apperr.Conflict(apperr.CodeDuplicate, "medicine %q already exists in this pharmacy", m.Name)
	}
	if err != nil {
		return fmt.Errorf("insert medicine: %w", err)
	}
	return nil
}

func (r *medicineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := scanMedicine(r.conn(ctx).QueryRow(ctx, `SELECT `+medicineCols+` FROM medicines m WHERE m.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("medicine", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	return m, nil
}

func (r *medicineRepoPG) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	return r.many(ctx, ids, "")
}

func (r *medicineRepoPG) LockMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	return r.many(ctx, ids, " FOR UPDATE")
}

func (r *medicineRepoPG) many(ctx context.Context, ids []uuid.UUID, suffix string) (map[uuid.UUID]*Medicine, error) {
	out := make(map[uuid.UUID]*Medicine, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medicineCols+` FROM medicines m
		WHERE m.id = ANY($1) ORDER BY m.id`+suffix, sorted)
	if err != nil {
		return nil, fmt.Errorf("get medicines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (r *medicineRepoPG) Update(ctx context.Context, m *Medicine, quantity *int) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET name=$2, generic_name=$3, brand=$4, category=$5, description=$6, dosage=$7,
			form=$8, price=$9, mrp=$10, discount=$11, quantity=COALESCE($12::integer, quantity),
			min_quantity=$13, expiry_date=$14, batch_number=$15, manufacturer=$16,
			prescription_required=$17, image=$18, updated_at=NOW()
		WHERE id = $1
		RETURNING quantity, updated_at`,
		m.ID, m.Name, m.GenericName, m.Brand, m.Category, m.Description, m.Dosage, m.Form,
		m.Price.String(), m.MRP.String(), m.Discount.String(), quantity, m.MinQuantity, m.ExpiryDate,
		m.BatchNumber, m.Manufacturer, m.PrescriptionRequired, m.Image,
	).Scan(&m.Quantity, &m.UpdatedAt)
	switch {
	case db.IsNoRows(err):
		return apperr.NotFound("medicine", m.ID.String())
	case db.IsUniqueViolation(err, "medicines_pharmacy_name_key"):
		return apperr.Conflict(apperr.CodeDuplicate, "medicine %q already exists in this pharmacy", m.Name)
	case db.IsCheckViolation(err):
		return apperr.Validation(apperr.CodeInvalidInput, "quantity must not be negative")
	case err != nil:
		return fmt.Errorf("update medicine: %w", err)
	}
	return nil
}

func (r *medicineRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE medicines SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate medicine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicine", id.String())
	}
	return nil
}

func (r *medicineRepoPG) DecrementStock(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	var remaining int
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE medicines SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity`, id, qty).Scan(&remaining)
	if db.IsNoRows(err) {
		return 0, apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock").
			WithDetail("medicineId", id.String()).WithDetail("requested", qty)
	}
	if err != nil {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}
	return remaining, nil
}

func (r *medicineRepoPG) ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID, f MedicineFilter, limit, offset int) ([]*Medicine, int, error) {
	where := ` WHERE m.pharmacy_id = $1`
	args := []interface{}{pharmacyID}
	if !f.IncludeInactive {
		where += ` AND m.is_active`
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND (m.name ILIKE $%d OR m.generic_name ILIKE $%d OR m.brand ILIKE $%d)`,
			len(args), len(args), len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where += fmt.Sprintf(` AND m.category = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicines m`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medicines: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+medicineCols+` FROM medicines m`+where+
		fmt.Sprintf(` ORDER BY m.name LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list medicines: %w", err)
	}
	defer rows.Close()

	var items []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *medicineRepoPG) SearchInStock(ctx context.Context, name string, limit int) ([]*StockMatch, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicineCols+`, p.name, p.location, p.contact
		FROM medicines m JOIN pharmacies p ON p.id = m.pharmacy_id
		WHERE m.is_active AND p.is_active AND m.quantity > 0
			AND (m.name ILIKE $1 OR m.generic_name ILIKE $1)
		ORDER BY m.price, p.name
		LIMIT $2`, "%"+name+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search stock: %w", err)
	}
	defer rows.Close()

	var out []*StockMatch
	for rows.Next() {
		var (
			m     Medicine
			match StockMatch
		)
		dest := append(medicineDest(&m), &match.PharmacyName, &match.Location, &match.Contact)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		match.Medicine = &m
		out = append(out, &match)
	}
	return out, rows.Err()
}

// =========== Cart Repository ===========

type cartRepoPG struct{ pool *pgxpool.Pool }

func NewCartRepoPG(pool *pgxpool.Pool) CartRepository { return &cartRepoPG{pool: pool} }

func (r *cartRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *cartRepoPG) get(ctx context.Context, userID, pharmacyID uuid.UUID, suffix string) (*Cart, error) {
	var (
		c     Cart
		items []byte
	)
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, pharmacy_id, items, total_amount, updated_at
		FROM carts WHERE user_id = $1 AND pharmacy_id = $2`+suffix, userID, pharmacyID,
	).Scan(&c.ID, &c.UserID, &c.PharmacyID, &items, &c.TotalAmount, &c.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("cart", pharmacyID.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	return &c, nil
}

func (r *cartRepoPG) Get(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	return r.get(ctx, userID, pharmacyID, "")
}

func (r *cartRepoPG) GetForUpdate(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	return r.get(ctx, userID, pharmacyID, " FOR UPDATE")
}

func (r *cartRepoPG) LockOrCreate(ctx context.Context, userID, pharmacyID uuid.UUID) (*Cart, error) {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO carts (id, user_id, pharmacy_id, items, total_amount)
		VALUES ($1, $2, $3, '[]', 0)
		ON CONFLICT (user_id, pharmacy_id) DO NOTHING`,
		uuid.New(), userID, pharmacyID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return r.get(ctx, userID, pharmacyID, " FOR UPDATE")
}

func (r *cartRepoPG) Save(ctx context.Context, c *Cart) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	items, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("encode cart items: %w", err)
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO carts (id, user_id, pharmacy_id, items, total_amount)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (user_id, pharmacy_id)
		DO UPDATE SET items = EXCLUDED.items, total_amount = EXCLUDED.total_amount, updated_at = NOW()
		RETURNING id, updated_at`,
		c.ID, c.UserID, c.PharmacyID, items, c.TotalAmount.String(),
	).Scan(&c.ID, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository { return &orderRepoPG{pool: pool} }

func (r *orderRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const orderCols = `id, order_number, user_id, pharmacy_id, items, order_type, delivery_address,
	subtotal, delivery_fee, total_amount, status, payment_method, payment_status, notes,
	prescription_required, status_history, created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                      Order
		items, addr, histories []byte
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.PharmacyID, &items, &o.OrderType, &addr,
		&o.Subtotal, &o.DeliveryFee, &o.TotalAmount, &o.Status, &o.PaymentMethod, &o.PaymentStatus,
		&o.Notes, &o.PrescriptionRequired, &histories, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if len(addr) > 0 && string(addr) != "null" {
		o.DeliveryAddress = &Address{}
		if err := json.Unmarshal(addr, o.DeliveryAddress); err != nil {
			return nil, fmt.Errorf("decode delivery address: %w", err)
		}
	}
	if err := json.Unmarshal(histories, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	var addr []byte
	if o.DeliveryAddress != nil {
		if addr, err = json.Marshal(o.DeliveryAddress); err != nil {
			return fmt.Errorf("encode delivery address: %w", err)
		}
	}
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}

	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO orders (id, order_number, user_id, pharmacy_id, items, order_type, delivery_address,
			subtotal, delivery_fee, total_amount, status, payment_method, payment_status, notes,
			prescription_required, status_history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderNumber, o.UserID, o.PharmacyID, items, o.OrderType, addr,
		o.Subtotal.String(), o.DeliveryFee.String(), o.TotalAmount.String(), o.Status,
		o.PaymentMethod, o.PaymentStatus, o.Notes, o.PrescriptionRequired, history,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepoPG) get(ctx context.Context, where string, arg interface{}) (*Order, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE `+where, arg))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("order", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *orderRepoPG) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return r.get(ctx, `order_number = $1`, number)
}

func (r *orderRepoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*Order, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orderCols+` FROM orders WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var items []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *orderRepoPG) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, int, error) {
	return r.list(ctx, `user_id = $1`, []interface{}{userID}, limit, offset)
}

func (r *orderRepoPG) ListByPharmacy(ctx context.Context, pharmacyID uuid.UUID, status string, limit, offset int) ([]*Order, int, error) {
	if status != "" {
		return r.list(ctx, `pharmacy_id = $1 AND status = $2`, []interface{}{pharmacyID, status}, limit, offset)
	}
	return r.list(ctx, `pharmacy_id = $1`, []interface{}{pharmacyID}, limit, offset)
}

func (r *orderRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from string, entry StatusEntry) error {
	raw, err := json.Marshal([]StatusEntry{entry})
	if err != nil {
		return fmt.Errorf("encode status entry: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET status = $3, status_history = status_history || $4::jsonb, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, entry.Status, raw)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict(apperr.CodeInvalidTransition, "order status changed concurrently").
			WithDetail("expected", from)
	}
	return nil
}
