package user

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/ahadi/core"
)

// Account roles. A normal account is a clinician or a provider, never
// both; system-internal accounts carry neither.
const (
	RoleClinician = "clinician"
	RoleProvider  = "provider"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsClinician  bool      `json:"is_clinician"`
	IsProvider   bool      `json:"is_provider"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) { u.IsActive = &active }

func (u *User) Active() bool { return u.IsActive != nil && *u.IsActive }

// Clinician is the learner profile; 1-to-1 with a User having IsClinician set.
type Clinician struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Institution string    `json:"institution"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Provider is the course-organizer profile; 1-to-1 with a User having IsProvider set.
type Provider struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Institution string    `json:"institution"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUser contains information needed to register a new account.
type NewUser struct {
	Username        string `json:"username" validate:"required,min=3,username"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,pwdminlen,pwdnospace,pwdnotallnum"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,oneof=clinician provider"`

	// profile fields; Institution is required for providers
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Institution string `json:"institution"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nu.Username = core.CleanString(nu.Username)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.FirstName = core.CleanString(nu.FirstName)
	nu.LastName = core.CleanString(nu.LastName)
	nu.Institution = core.CleanString(nu.Institution)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	if nu.Role == RoleProvider && nu.Institution == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "institution", Error: "this field is required"})
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateProfile defines what a signed-in user may change on their own profile.
type UpdateProfile struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Institution string `json:"institution"`
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,pwdminlen,pwdnospace,pwdnotallnum"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	registerPasswordValidators(validate, translator)
}
