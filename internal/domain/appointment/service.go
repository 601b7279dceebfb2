package appointment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/events"
	"github.com/ruralcare/telemed/internal/platform/metrics"
)

type Service struct {
	repo      Repository
	directory Directory
	events    events.Publisher
	metrics   *metrics.Collector
	logger    zerolog.Logger
}

func NewService(repo Repository, directory Directory, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop
	}
	return &Service{repo: repo, directory: directory, events: publisher, logger: logger}
}

// SetMetrics attaches an optional collector.
func (s *Service) SetMetrics(m *metrics.Collector) {
	s.metrics = m
}

// notify pushes the appointment to recipient's user topic. Failures are
// logged only.
func (s *Service) notify(ctx context.Context, name string, recipient uuid.UUID, v *View) {
	topic := events.UserTopic(recipient.String())
	if err := s.events.Publish(ctx, events.New(name, topic, v)); err != nil {
		s.logger.Warn().Err(err).Str("event", name).Str("topic", topic).Msg("event publish failed")
	}
}

// Book files a pending request from a patient to a doctor.
func (s *Service) Book(ctx context.Context, caller uuid.UUID, in BookInput) (*View, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.MissingField("patientId")
	}
	if in.DoctorID == uuid.Nil {
		return nil, apperr.MissingField("doctorId")
	}
	date, err := normalizeDate("requestedDate", in.RequestedDate)
	if err != nil {
		return nil, err
	}
	if in.PatientID != caller {
		return nil, apperr.Forbidden("appointments can only be booked for yourself")
	}
	switch in.ConsultationType {
	case "":
		in.ConsultationType = ConsultationVideo
	case ConsultationVideo, ConsultationChat:
	default:
		return nil, apperr.Validation(apperr.CodeInvalidInput, "invalid consultationType %q", in.ConsultationType)
	}

	doctor, role, err := s.directory.Participant(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}
	if role != auth.RoleDoctor {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "user %s is not a doctor", in.DoctorID)
	}

	a := &Appointment{
		ID:               uuid.New(),
		PatientID:        in.PatientID,
		DoctorID:         in.DoctorID,
		RequestedDate:    date,
		ConsultationType: in.ConsultationType,
		Symptoms:         strings.TrimSpace(in.Symptoms),
		PatientNotes:     strings.TrimSpace(in.PatientNotes),
		Status:           StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.metrics.Appointment(StatusPending)
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Str("requested_date", date).
		Msg("appointment requested")

	v, err := s.repo.GetView(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, events.AppointmentRequested, a.DoctorID, v)
	return v, nil
}

// Get returns an appointment to one of its participants.
func (s *Service) Get(ctx context.Context, caller, id uuid.UUID) (*View, error) {
	v, err := s.repo.GetView(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.IsParticipant(caller) {
		return nil, apperr.Forbidden("not a participant of this appointment")
	}
	return v, nil
}

func (s *Service) ListForPatient(ctx context.Context, caller, patientID uuid.UUID, limit, offset int) ([]*View, int, error) {
	if caller != patientID {
		return nil, 0, apperr.Forbidden("can only list your own appointments")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListForDoctor lists the doctor's appointments, optionally by status.
func (s *Service) ListForDoctor(ctx context.Context, caller, doctorID uuid.UUID, status string, limit, offset int) ([]*View, int, error) {
	if caller != doctorID {
		return nil, 0, apperr.Forbidden("can only list your own appointments")
	}
	if status != "" && !statuses[status] {
		return nil, 0, apperr.Validation(apperr.CodeInvalidInput, "invalid status %q", status)
	}
	return s.repo.ListByDoctor(ctx, doctorID, status, limit, offset)
}

// load fetches id and checks caller may act on it.
func (s *Service) load(ctx context.Context, id uuid.UUID, allowed func(*Appointment) bool, msg string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(a) {
		return nil, apperr.Forbidden(msg)
	}
	return a, nil
}

// Confirm books a slot for a pending appointment. A slot the doctor already
// holds under another confirmed appointment fails with SLOT_TAKEN and leaves
// this one pending.
func (s *Service) Confirm(ctx context.Context, doctorID, id uuid.UUID, in ConfirmInput) (*View, error) {
	date, err := normalizeDate("confirmedDate", in.ConfirmedDate)
	if err != nil {
		return nil, err
	}
	slot := Slot{Date: date, TimeSlot: strings.TrimSpace(in.TimeSlot)}
	if slot.TimeSlot == "" {
		return nil, apperr.MissingField("timeSlot")
	}

	a, err := s.load(ctx, id, func(a *Appointment) bool { return a.DoctorID == doctorID },
		"only the appointment's doctor can confirm it")
	if err != nil {
		return nil, err
	}
	if !CanMove(a.Status, StatusConfirmed) {
		return nil, invalidTransition(a.Status, StatusConfirmed)
	}
	if err := s.repo.Confirm(ctx, id, slot, strings.TrimSpace(in.DoctorNotes)); err != nil {
		return nil, err
	}
	return s.after(ctx, a, doctorID, StatusConfirmed)
}

func (s *Service) Reject(ctx context.Context, doctorID, id uuid.UUID, reason string) (*View, error) {
	a, err := s.load(ctx, id, func(a *Appointment) bool { return a.DoctorID == doctorID },
		"only the appointment's doctor can reject it")
	if err != nil {
		return nil, err
	}
	return s.move(ctx, a, doctorID, StatusRejected, reason)
}

// Cancel withdraws a pending or confirmed appointment on the patient's behalf.
func (s *Service) Cancel(ctx context.Context, patientID, id uuid.UUID, reason string) (*View, error) {
	a, err := s.load(ctx, id, func(a *Appointment) bool { return a.PatientID == patientID },
		"only the appointment's patient can cancel it")
	if err != nil {
		return nil, err
	}
	return s.move(ctx, a, patientID, StatusCancelled, reason)
}

// Complete closes a confirmed appointment. Either participant may call it;
// the call client does so when a connected call ends.
func (s *Service) Complete(ctx context.Context, caller, id uuid.UUID) (*View, error) {
	a, err := s.load(ctx, id, func(a *Appointment) bool { return a.IsParticipant(caller) },
		"not a participant of this appointment")
	if err != nil {
		return nil, err
	}
	return s.move(ctx, a, caller, StatusCompleted, "")
}

func (s *Service) move(ctx context.Context, a *Appointment, actor uuid.UUID, to, reason string) (*View, error) {
	if !CanMove(a.Status, to) {
		return nil, invalidTransition(a.Status, to)
	}
	t := Transition{From: transitions[to], To: to, Reason: strings.TrimSpace(reason)}
	if err := s.repo.UpdateStatus(ctx, a.ID, t); err != nil {
		return nil, err
	}
	return s.after(ctx, a, actor, to)
}

// after reloads the view and tells the other participant.
func (s *Service) after(ctx context.Context, a *Appointment, actor uuid.UUID, to string) (*View, error) {
	s.metrics.Appointment(to)
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("from", a.Status).
		Str("to", to).
		Msg("appointment status changed")

	v, err := s.repo.GetView(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, events.AppointmentUpdated, a.Counterpart(actor), v)
	return v, nil
}
