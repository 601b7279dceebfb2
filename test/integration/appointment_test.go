//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralcare/telemed/internal/domain/appointment"
	"github.com/ruralcare/telemed/internal/domain/identity"
	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/events"
)

func newAppointmentService() (*appointment.Service, *events.Recorder) {
	rec := &events.Recorder{}
	dir := appointment.NewUserDirectory(identity.NewUserRepoPG(globalPool))
	return appointment.NewService(appointment.NewRepoPG(globalPool), dir, rec, zerolog.Nop()), rec
}

func bookFor(t *testing.T, svc *appointment.Service, patient, doctor uuid.UUID) *appointment.View {
	t.Helper()
	v, err := svc.Book(context.Background(), patient, appointment.BookInput{
		PatientID:     patient,
		DoctorID:      doctor,
		RequestedDate: "2026-11-02",
		Symptoms:      "fever",
	})
	require.NoError(t, err)
	return v
}

var morning = appointment.ConfirmInput{ConfirmedDate: "2026-11-03", TimeSlot: "10:00-10:30"}

func TestAppointment_SlotHeldByOneConfirmation(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	svc, rec := newAppointmentService()
	doctor := createUser(t, auth.RoleDoctor, "Dr. Rao")
	p1 := createUser(t, auth.RolePatient, "Asha")
	p2 := createUser(t, auth.RolePatient, "Meena")

	a1 := bookFor(t, svc, p1.ID, doctor.ID)
	a2 := bookFor(t, svc, p2.ID, doctor.ID)

	confirmed, err := svc.Confirm(ctx, doctor.ID, a1.ID, morning)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, confirmed.Status)

	_, err = svc.Confirm(ctx, doctor.ID, a2.ID, morning)
	require.True(t, apperr.HasCode(err, apperr.CodeSlotTaken), "got %v", err)

	still, err := svc.Get(ctx, p2.ID, a2.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, still.Status)

	// Cancelling the holder frees the slot.
	_, err = svc.Cancel(ctx, p1.ID, a1.ID, "feeling better")
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, doctor.ID, a2.ID, morning)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.Named(events.AppointmentRequested))
	assert.NotEmpty(t, rec.Named(events.AppointmentUpdated))
}

func TestAppointment_ConcurrentConfirmations(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	svc, _ := newAppointmentService()
	doctor := createUser(t, auth.RoleDoctor, "Dr. Rao")

	const n = 6
	ids := make([]uuid.UUID, n)
	for i := range ids {
		patient := createUser(t, auth.RolePatient, "Patient")
		ids[i] = bookFor(t, svc, patient.ID, doctor.ID).ID
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    int
		taken  int
		others []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := svc.Confirm(ctx, doctor.ID, id, morning)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case apperr.HasCode(err, apperr.CodeSlotTaken):
				taken++
			default:
				others = append(others, err)
			}
		}(id)
	}
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, taken)

	var confirmed int
	err := globalPool.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE doctor_id = $1 AND status = 'confirmed'`, doctor.ID).Scan(&confirmed)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
}

func TestAppointment_TerminalStatusIsFinal(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	svc, _ := newAppointmentService()
	doctor := createUser(t, auth.RoleDoctor, "Dr. Rao")
	patient := createUser(t, auth.RolePatient, "Asha")

	a := bookFor(t, svc, patient.ID, doctor.ID)
	_, err := svc.Reject(ctx, doctor.ID, a.ID, "not available")
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, doctor.ID, a.ID, morning)
	require.True(t, apperr.HasCode(err, apperr.CodeInvalidTransition), "got %v", err)

	v, err := svc.Get(ctx, patient.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusRejected, v.Status)
	assert.Equal(t, "not available", v.RejectionReason)
}
