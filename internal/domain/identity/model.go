package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/ruralcare/telemed/internal/platform/auth"
)

// DefaultSpecialization groups doctors that never set one.
const DefaultSpecialization = "General"

type PatientProfile struct {
	Age     int    `json:"age,omitempty"`
	Village string `json:"village,omitempty"`
}

type DoctorProfile struct {
	Specialization string `json:"specialization,omitempty"`
	Qualification  string `json:"qualification,omitempty"`
	Availability   string `json:"availability,omitempty"`
}

// PharmacyProfile is empty; the owned pharmacy carries the business details.
type PharmacyProfile struct{}

// Profile is the role-specific part of a user. Exactly one member is set and
// it always matches User.Role.
type Profile struct {
	Patient  *PatientProfile  `json:"patient,omitempty"`
	Doctor   *DoctorProfile   `json:"doctor,omitempty"`
	Pharmacy *PharmacyProfile `json:"pharmacy,omitempty"`
}

// NewProfile returns the empty profile variant for role.
func NewProfile(role string) Profile {
	switch role {
	case auth.RolePatient:
		return Profile{Patient: &PatientProfile{}}
	case auth.RoleDoctor:
		return Profile{Doctor: &DoctorProfile{}}
	case auth.RolePharmacy:
		return Profile{Pharmacy: &PharmacyProfile{}}
	}
	return Profile{}
}

// Role reports which variant is populated, or "" when none or several are.
func (p Profile) Role() string {
	var role string
	n := 0
	if p.Patient != nil {
		role, n = auth.RolePatient, n+1
	}
	if p.Doctor != nil {
		role, n = auth.RoleDoctor, n+1
	}
	if p.Pharmacy != nil {
		role, n = auth.RolePharmacy, n+1
	}
	if n != 1 {
		return ""
	}
	return role
}

func ValidRole(role string) bool {
	switch role {
	case auth.RolePatient, auth.RoleDoctor, auth.RolePharmacy:
		return true
	}
	return false
}

type User struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	Phone          string    `json:"phone,omitempty"`
	Bio            string    `json:"bio,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Profile        Profile   `json:"profile"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Specialization returns the doctor's specialization, falling back to
// DefaultSpecialization.
func (u *User) Specialization() string {
	if u.Profile.Doctor != nil && u.Profile.Doctor.Specialization != "" {
		return u.Profile.Doctor.Specialization
	}
	return DefaultSpecialization
}

func (u *User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID.String(), Role: u.Role, Name: u.Name}
}

type RegisterInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	Phone          string `json:"phone"`
	Age            int    `json:"age"`
	Village        string `json:"village"`
	Specialization string `json:"specialization"`
	Qualification  string `json:"qualification"`
	Availability   string `json:"availability"`
}

// ProfileUpdate carries optional changes; zero values are left untouched.
type ProfileUpdate struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Bio            string `json:"bio"`
	ProfilePicture string `json:"profilePicture"`
	Age            int    `json:"age"`
	Village        string `json:"village"`
	Specialization string `json:"specialization"`
	Qualification  string `json:"qualification"`
	Availability   string `json:"availability"`
}

// Apply copies the non-empty fields onto u. Fields that belong to another
// role's profile are ignored.
func (p ProfileUpdate) Apply(u *User) {
	setIf(&u.Name, p.Name)
	setIf(&u.Phone, p.Phone)
	setIf(&u.Bio, p.Bio)
	setIf(&u.ProfilePicture, p.ProfilePicture)

	switch {
	case u.Profile.Patient != nil:
		if p.Age > 0 {
			u.Profile.Patient.Age = p.Age
		}
		setIf(&u.Profile.Patient.Village, p.Village)
	case u.Profile.Doctor != nil:
		setIf(&u.Profile.Doctor.Specialization, p.Specialization)
		setIf(&u.Profile.Doctor.Qualification, p.Qualification)
		setIf(&u.Profile.Doctor.Availability, p.Availability)
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
