package records

import (
	"context"

	"github.com/google/uuid"

	"github.com/ruralcare/telemed/internal/domain/appointment"
	"github.com/ruralcare/telemed/internal/domain/identity"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	// ListByPatient returns the patient's records, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
}

// AppointmentLookup is satisfied by appointment.Repository.
type AppointmentLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// UserLookup is satisfied by identity.UserRepository.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}
