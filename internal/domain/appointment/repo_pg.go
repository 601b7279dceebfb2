package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/db"
)

// slotIndex is the partial unique index on (doctor_id, confirmed_date,
// time_slot) for confirmed appointments.
const slotIndex = "appointments_doctor_slot_confirmed_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.patient_id, a.doctor_id, to_char(a.requested_date, 'YYYY-MM-DD'),
	COALESCE(to_char(a.confirmed_date, 'YYYY-MM-DD'), ''), a.time_slot, a.consultation_type,
	a.symptoms, a.patient_notes, a.doctor_notes, a.rejection_reason, a.cancellation_reason,
	a.status, a.created_at, a.updated_at`

// viewCols appends both participants, read from the users table.
const viewCols = apptCols + `,
	d.name, d.email, COALESCE(NULLIF(d.profile->'doctor'->>'specialization', ''), 'General'),
	COALESCE(d.profile->'doctor'->>'qualification', ''), COALESCE(d.profile->'doctor'->>'availability', ''),
	p.name, p.email, COALESCE((p.profile->'patient'->>'age')::int, 0), COALESCE(p.profile->'patient'->>'village', '')`

const viewFrom = ` FROM appointments a
	JOIN users d ON d.id = a.doctor_id
	JOIN users p ON p.id = a.patient_id`

func apptDest(a *Appointment) []interface{} {
	return []interface{}{&a.ID, &a.PatientID, &a.DoctorID, &a.RequestedDate, &a.ConfirmedDate,
		&a.TimeSlot, &a.ConsultationType, &a.Symptoms, &a.PatientNotes, &a.DoctorNotes,
		&a.RejectionReason, &a.CancellationReason, &a.Status, &a.CreatedAt, &a.UpdatedAt}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(apptDest(&a)...)
	return &a, err
}

func scanView(row pgx.Row) (*View, error) {
	v := &View{Doctor: &Participant{}, Patient: &Participant{}}
	dest := append(apptDest(&v.Appointment),
		&v.Doctor.Name, &v.Doctor.Email, &v.Doctor.Specialization, &v.Doctor.Qualification, &v.Doctor.Availability,
		&v.Patient.Name, &v.Patient.Email, &v.Patient.Age, &v.Patient.Village)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	v.Doctor.ID = v.DoctorID
	v.Patient.ID = v.PatientID
	return v, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, requested_date, consultation_type,
			symptoms, patient_notes, status)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.RequestedDate, a.ConsultationType,
		a.Symptoms, a.PatientNotes, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments a WHERE a.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *repoPG) GetView(ctx context.Context, id uuid.UUID) (*View, error) {
	v, err := scanView(r.conn(ctx).QueryRow(ctx, `SELECT `+viewCols+viewFrom+` WHERE a.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment view: %w", err)
	}
	return v, nil
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*View, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments a WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+viewCols+viewFrom+` WHERE `+where+
		fmt.Sprintf(` ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*View, int, error) {
	return r.list(ctx, `a.patient_id = $1`, []interface{}{patientID}, limit, offset)
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*View, int, error) {
	if status != "" {
		return r.list(ctx, `a.doctor_id = $1 AND a.status = $2`, []interface{}{doctorID, status}, limit, offset)
	}
	return r.list(ctx, `a.doctor_id = $1`, []interface{}{doctorID}, limit, offset)
}

// Confirm relies on the NOT EXISTS guard for the common case and on the
// partial unique index when two confirmations for the same slot commit
// concurrently.
func (r *repoPG) Confirm(ctx context.Context, id uuid.UUID, slot Slot, doctorNotes string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments a
		SET status = 'confirmed', confirmed_date = $2::date, time_slot = $3, doctor_notes = $4,
			updated_at = NOW()
		WHERE a.id = $1 AND a.status = 'pending'
			AND NOT EXISTS (
				SELECT 1 FROM appointments b
				WHERE b.doctor_id = a.doctor_id AND b.id <> a.id AND b.status = 'confirmed'
					AND b.confirmed_date = $2::date AND b.time_slot = $3
			)`, id, slot.Date, slot.TimeSlot, doctorNotes)
	if db.IsUniqueViolation(err, slotIndex) {
		return slotTaken(slot)
	}
	if err != nil {
		return fmt.Errorf("confirm appointment: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	a, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if a.Status != StatusPending {
		return invalidTransition(a.Status, StatusConfirmed)
	}
	return slotTaken(slot)
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			rejection_reason = CASE WHEN $2 = 'rejected' THEN $3 ELSE rejection_reason END,
			cancellation_reason = CASE WHEN $2 = 'cancelled' THEN $3 ELSE cancellation_reason END,
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)`, id, t.To, t.Reason, t.From)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return invalidTransition(a.Status, t.To)
}

func slotTaken(slot Slot) error {
	return apperr.Conflict(apperr.CodeSlotTaken, "this time slot is already booked for the selected date").
		WithDetail("confirmedDate", slot.Date).
		WithDetail("timeSlot", slot.TimeSlot)
}

func invalidTransition(from, to string) error {
	return apperr.Conflict(apperr.CodeInvalidTransition, "cannot move appointment from %s to %s", from, to).
		WithDetail("from", from).
		WithDetail("to", to)
}
