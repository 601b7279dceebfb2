package appointment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetView returns the appointment joined with both participants.
	GetView(ctx context.Context, id uuid.UUID) (*View, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*View, int, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*View, int, error)
	// Confirm books slot for a pending appointment in one conditional write.
	// It fails with SLOT_TAKEN when the doctor already has another confirmed
	// appointment in the slot, and with INVALID_TRANSITION when the
	// appointment is no longer pending.
	Confirm(ctx context.Context, id uuid.UUID, slot Slot, doctorNotes string) error
	// UpdateStatus applies t only while the status is one of t.From.
	UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) error
}

// Directory resolves users referenced by appointments.
type Directory interface {
	Participant(ctx context.Context, id uuid.UUID) (*Participant, string, error)
}
