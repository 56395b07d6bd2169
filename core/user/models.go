package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/alama/core"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleMarker = "marker"
)

var AllRoles = []string{RoleAdmin, RoleMarker}

type User struct {
	ID             int         `json:"id" db:"id"`
	Username       string      `json:"username" db:"username"`
	Email          string      `json:"email" db:"email"`
	StaffID        null.String `json:"staffId" db:"staff_id"`
	Role           string      `json:"role" db:"role"`
	ProfilePicture null.String `json:"profile_picture" db:"profile_picture"` // stored file name
	PasswordHash   []byte      `json:"-" db:"password_hash"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"` // UTC
	LastLogin      null.Time   `json:"last_login" db:"last_login"` // UTC
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

func (u *User) IsAdmin() bool  { return u.Role == RoleAdmin }
func (u *User) IsMarker() bool { return u.Role == RoleMarker }

// NewUser contains information needed to sign a new User up.
type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum_"`
	Email    string `json:"email" validate:"required,email"`
	StaffID  string `json:"staffId" validate:"omitempty,max=64"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,role"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nu.Username = core.CleanString(nu.Username)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.StaffID = core.CleanString(nu.StaffID)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email, nu.StaffID)
}

// UpdateAccount defines the self-service partial account update. Empty fields
// are left untouched.
type UpdateAccount struct {
	Username string `json:"username" validate:"omitempty,min=3,max=64,alphanum_"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

func (ua *UpdateAccount) Validate(ctx context.Context, validate *validator.Validate, svc *Service, orig User) error {
	ua.Username = core.CleanString(ua.Username)
	ua.Email = core.CleanString(ua.Email, true /* lower */)

	if err := validate.Struct(ua); err != nil {
		return err
	}
	uname, email := ua.Username, ua.Email
	if uname == "" {
		uname = orig.Username
	}
	if email == "" {
		email = orig.Email
	}
	// a no-op update of one's own username/email must pass
	return svc.CheckUniqueness(ctx, uname, email, orig.StaffID.String, orig)
}
