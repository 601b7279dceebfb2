package records

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/blobstore"
)

type Service struct {
	repo         Repository
	appointments AppointmentLookup
	users        UserLookup
	archive      blobstore.BlobStore
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService wires the records service. archive may be nil, in which case
// exports are not kept.
func NewService(repo Repository, appointments AppointmentLookup, users UserLookup, archive blobstore.BlobStore, logger zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		users:        users,
		archive:      archive,
		logger:       logger,
		now:          time.Now,
	}
}

// Create files a record for the patient of one of the doctor's appointments.
func (s *Service) Create(ctx context.Context, doctorID uuid.UUID, in CreateInput) (*Record, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.MissingField("patientId")
	}
	if in.AppointmentID == uuid.Nil {
		return nil, apperr.MissingField("appointmentId")
	}
	diagnosis := strings.TrimSpace(in.Diagnosis)
	if diagnosis == "" {
		return nil, apperr.MissingField("diagnosis")
	}

	appt, err := s.appointments.GetByID(ctx, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, apperr.Forbidden("only the appointment's doctor can add records to it")
	}
	if appt.PatientID != in.PatientID {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "appointment %s is not for patient %s", appt.ID, in.PatientID).
			WithDetail("field", "patientId")
	}

	rec := &Record{
		ID:            uuid.New(),
		PatientID:     in.PatientID,
		AppointmentID: in.AppointmentID,
		DoctorID:      doctorID,
		Diagnosis:     diagnosis,
		Prescription:  strings.TrimSpace(in.Prescription),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("record_id", rec.ID.String()).
		Str("patient_id", rec.PatientID.String()).
		Str("appointment_id", rec.AppointmentID.String()).
		Msg("health record created")
	return rec, nil
}

func canRead(caller auth.Identity, patientID uuid.UUID) bool {
	return caller.Role == auth.RoleDoctor || caller.UserID == patientID.String()
}

// List returns the patient's history to the patient or to a doctor.
func (s *Service) List(ctx context.Context, caller auth.Identity, patientID uuid.UUID) ([]*Record, error) {
	if !canRead(caller, patientID) {
		return nil, apperr.Forbidden("cannot read another patient's records")
	}
	return s.repo.ListByPatient(ctx, patientID)
}

// Export renders the patient's history as a PDF. When an archive is
// configured the document is stored as well; archive failures are logged.
func (s *Service) Export(ctx context.Context, caller auth.Identity, patientID uuid.UUID) (*Export, error) {
	if !canRead(caller, patientID) {
		return nil, apperr.Forbidden("cannot read another patient's records")
	}
	patient, err := s.users.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	content, err := renderHistory(patient.Name, recs, s.now())
	if err != nil {
		return nil, apperr.Internal(err, "could not render health records")
	}

	out := &Export{
		FileName: fmt.Sprintf("health_records_%s.pdf", patientID),
		Content:  content,
	}
	if s.archive != nil {
		meta, err := s.archive.Upload(ctx, blobstore.BlobMetadata{
			FileName:    out.FileName,
			ContentType: "application/pdf",
			PatientID:   patientID.String(),
			Category:    blobstore.CategoryHealthRecord,
			CreatedBy:   caller.UserID,
			Tags:        map[string]string{"records": strconv.Itoa(len(recs))},
		}, bytes.NewReader(content))
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID.String()).Msg("health record archive failed")
		} else {
			out.ArchiveID = meta.ID
		}
	}
	return out, nil
}
