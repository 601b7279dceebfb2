package records

import (
	"time"

	"github.com/google/uuid"
)

// Record is a doctor's note on a patient, tied to the consultation that
// produced it.
type Record struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patientId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	DoctorID      uuid.UUID `json:"doctorId"`
	Diagnosis     string    `json:"diagnosis"`
	Prescription  string    `json:"prescription,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type CreateInput struct {
	PatientID     uuid.UUID `json:"patientId"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	Diagnosis     string    `json:"diagnosis"`
	Prescription  string    `json:"prescription"`
}

// Export is a rendered history document.
type Export struct {
	FileName  string
	Content   []byte
	ArchiveID string
}
