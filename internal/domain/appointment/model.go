package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruralcare/telemed/internal/platform/apperr"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var statuses = map[string]bool{
	StatusPending: true, StatusConfirmed: true, StatusRejected: true,
	StatusCompleted: true, StatusCancelled: true,
}

const (
	ConsultationVideo = "video"
	ConsultationChat  = "chat"
)

// dateLayout is the wire and storage form of requested and confirmed dates.
const dateLayout = "2006-01-02"

// transitions lists, per target status, the statuses it may be reached from.
// rejected, completed and cancelled are terminal.
var transitions = map[string][]string{
	StatusConfirmed: {StatusPending},
	StatusRejected:  {StatusPending},
	StatusCompleted: {StatusConfirmed},
	StatusCancelled: {StatusPending, StatusConfirmed},
}

// IsTerminal reports whether no transition leaves status.
func IsTerminal(status string) bool {
	return status == StatusRejected || status == StatusCompleted || status == StatusCancelled
}

// CanMove reports whether an appointment in from may move to to.
func CanMove(from, to string) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patientId"`
	DoctorID           uuid.UUID `json:"doctorId"`
	RequestedDate      string    `json:"requestedDate"`
	ConfirmedDate      string    `json:"confirmedDate,omitempty"`
	TimeSlot           string    `json:"timeSlot,omitempty"`
	ConsultationType   string    `json:"consultationType"`
	Symptoms           string    `json:"symptoms,omitempty"`
	PatientNotes       string    `json:"patientNotes,omitempty"`
	DoctorNotes        string    `json:"doctorNotes,omitempty"`
	RejectionReason    string    `json:"rejectionReason,omitempty"`
	CancellationReason string    `json:"cancellationReason,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// IsParticipant reports whether userID is the patient or the doctor.
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	return a.PatientID == userID || a.DoctorID == userID
}

// Counterpart returns the other participant.
func (a *Appointment) Counterpart(userID uuid.UUID) uuid.UUID {
	if userID == a.DoctorID {
		return a.PatientID
	}
	return a.DoctorID
}

// Participant is the summary of a user shown next to an appointment.
type Participant struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
	Qualification  string    `json:"qualification,omitempty"`
	Availability   string    `json:"availability,omitempty"`
	Age            int       `json:"age,omitempty"`
	Village        string    `json:"village,omitempty"`
}

// View is an appointment joined with both participants.
type View struct {
	Appointment
	Doctor  *Participant `json:"doctor,omitempty"`
	Patient *Participant `json:"patient,omitempty"`
}

type BookInput struct {
	PatientID        uuid.UUID `json:"patientId"`
	DoctorID         uuid.UUID `json:"doctorId"`
	RequestedDate    string    `json:"requestedDate"`
	Symptoms         string    `json:"symptoms"`
	PatientNotes     string    `json:"patientNotes"`
	ConsultationType string    `json:"consultationType"`
}

type ConfirmInput struct {
	ConfirmedDate string `json:"confirmedDate"`
	TimeSlot      string `json:"timeSlot"`
	DoctorNotes   string `json:"doctorNotes"`
}

// Slot is a doctor's booked consultation period.
type Slot struct {
	Date     string
	TimeSlot string
}

// Transition is a conditional status change.
type Transition struct {
	From   []string
	To     string
	Reason string
}

// normalizeDate accepts a calendar date or an RFC 3339 timestamp and returns
// the calendar date.
func normalizeDate(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.MissingField(field)
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t.Format(dateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC().Format(dateLayout), nil
	}
	return "", apperr.Validation(apperr.CodeInvalidInput, "%s must be a date (YYYY-MM-DD)", field).
		WithDetail("field", field)
}
