package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/ruralcare/telemed/internal/domain/identity"
)

// UserLookup is the part of the identity store appointments need.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error)
}

// UserDirectory resolves participants from the identity store.
type UserDirectory struct {
	users UserLookup
}

func NewUserDirectory(users UserLookup) *UserDirectory {
	return &UserDirectory{users: users}
}

func (d *UserDirectory) Participant(ctx context.Context, id uuid.UUID) (*Participant, string, error) {
	u, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return Summarize(u), u.Role, nil
}

// Summarize projects a user onto the fields shown next to appointments.
func Summarize(u *identity.User) *Participant {
	p := &Participant{ID: u.ID, Name: u.Name, Email: u.Email}
	if d := u.Profile.Doctor; d != nil {
		p.Specialization = u.Specialization()
		p.Qualification = d.Qualification
		p.Availability = d.Availability
	}
	if pt := u.Profile.Patient; pt != nil {
		p.Age = pt.Age
		p.Village = pt.Village
	}
	return p
}
