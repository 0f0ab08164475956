package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

// Roles
const (
	RoleAdmin   = identity.RoleAdmin
	RoleStudent = identity.RoleStudent
)

var Roles = []string{RoleAdmin, RoleStudent}

// Profile is the application-side record of a person. AccountID links it to
// the account backend; a Profile without one is a placeholder.
type Profile struct {
	ID              string      `json:"id" db:"id"`
	AccountID       null.String `json:"account_id" db:"account_id"`
	IDNumber        string      `json:"id_number" db:"nim"`
	Name            string      `json:"name" db:"nama"`
	Email           string      `json:"email" db:"email"`
	Role            string      `json:"role" db:"role"`
	TrackLevel      string      `json:"track_level" db:"tingkat"`
	Section         string      `json:"section" db:"kelas"`
	GuardianName    null.String `json:"guardian_name" db:"nama_wali"`
	GuardianContact null.String `json:"guardian_contact" db:"no_wa_wali"`
	AdvisorName     null.String `json:"advisor_name" db:"nama_dosen_pembimbing"`
	AdvisorContact  null.String `json:"advisor_contact" db:"no_wa_dosen_pembimbing"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// IsPlaceholder reports whether the profile predates its account.
func (p Profile) IsPlaceholder() bool { return !p.AccountID.Valid || p.AccountID.String == "" }

// NeedsCompletion reports whether a student still has to fill in their contacts.
func (p Profile) NeedsCompletion() bool {
	if p.IsAdmin() {
		return false
	}
	return blank(p.GuardianName) || blank(p.GuardianContact) || blank(p.AdvisorName) || blank(p.AdvisorContact)
}

func (p Profile) Principal() identity.Principal {
	return identity.Principal{
		ProfileID: p.ID,
		AccountID: p.AccountID.String,
		IDNumber:  p.IDNumber,
		Name:      p.Name,
		Email:     p.Email,
		Role:      p.Role,
	}
}

func blank(s null.String) bool { return !s.Valid || core.CleanString(s.String) == "" }

// NewProfile contains information needed to create a Profile together with its account.
type NewProfile struct {
	IDNumber        string `json:"id_number" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Role            string `json:"role" validate:"required,oneof=admin student"`
	TrackLevel      string `json:"track_level"`
	Section         string `json:"section"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (np *NewProfile) Validate(validate *validator.Validate) error {
	np.IDNumber = core.CleanString(np.IDNumber)
	np.Name = core.CleanString(np.Name)
	np.Email = core.CleanString(np.Email, true /* lower */)
	np.Role = core.CleanString(np.Role, true /* lower */)
	np.TrackLevel = core.CleanString(np.TrackLevel)
	np.Section = core.CleanString(np.Section)
	return validate.Struct(np)
}

// CompleteProfile is what a student fills in after their first login.
type CompleteProfile struct {
	GuardianName    string `json:"guardian_name" validate:"required"`
	GuardianContact string `json:"guardian_contact" validate:"required,phone"`
	AdvisorName     string `json:"advisor_name" validate:"required"`
	AdvisorContact  string `json:"advisor_contact" validate:"required,phone"`
}

func (cp *CompleteProfile) Validate(validate *validator.Validate) error {
	cp.GuardianName = core.CleanString(cp.GuardianName)
	cp.GuardianContact = core.CleanString(cp.GuardianContact)
	cp.AdvisorName = core.CleanString(cp.AdvisorName)
	cp.AdvisorContact = core.CleanString(cp.AdvisorContact)
	return validate.Struct(cp)
}

// ChangePassword is a password change requested by the account owner.
type ChangePassword struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`

	// owner attributes the password must not resemble
	name, idNumber, email string
}

func (cp *ChangePassword) Validate(validate *validator.Validate, owner Profile) error {
	cp.name, cp.idNumber, cp.email = owner.Name, owner.IDNumber, owner.Email
	return validate.Struct(cp)
}

// UpdateProfile defines what an admin may change on an existing Profile. Nil fields are left as is.
type UpdateProfile struct {
	Name            string  `json:"name"`
	Role            string  `json:"role" validate:"omitempty,oneof=admin student"`
	TrackLevel      *string `json:"track_level"`
	Section         *string `json:"section"`
	GuardianName    *string `json:"guardian_name"`
	GuardianContact *string `json:"guardian_contact" validate:"omitempty,phone"`
	AdvisorName     *string `json:"advisor_name"`
	AdvisorContact  *string `json:"advisor_contact" validate:"omitempty,phone"`
}

func (up *UpdateProfile) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	up.Role = core.CleanString(up.Role, true /* lower */)
	for _, fld := range []*string{up.TrackLevel, up.Section, up.GuardianName, up.GuardianContact, up.AdvisorName, up.AdvisorContact} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	return validate.Struct(up)
}

type QueryFilter struct {
	Search     string `query:"search"`
	Role       string `query:"role"`
	TrackLevel string `query:"track_level"`
	Section    string `query:"section"`
	Incomplete *bool  `query:"incomplete"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.TrackLevel == "" && qf.Section == "" && qf.Incomplete == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
	qf.TrackLevel = core.CleanString(qf.TrackLevel)
	qf.Section = core.CleanString(qf.Section)
}

// GetFilter selects one Profile; the first non-empty field is used.
type GetFilter struct {
	ID        string
	AccountID string
	IDNumber  string
	Email     string
}

// OrderingFields maps the API ordering fields to columns.
var OrderingFields = map[string]string{
	"name":        "nama",
	"id_number":   "nim",
	"role":        "role",
	"track_level": "tingkat",
	"section":     "kelas",
	"created_at":  "created_at",
}
