package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/alama/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("Email has already been registered.")
	ErrUsernameExists = errors.New("Username has already been registered.")
	ErrStaffIDExists  = errors.New("Staff ID has already been registered.")
	ErrAdminExists    = errors.New("Administrator has already been registered.")
	ErrAuthFailed     = errors.New("Invalid email or password.")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists, ErrEmailExists or
		// ErrStaffIDExists when another (non-excluded) user holds the value.
		CheckUniqueness(ctx context.Context, username, email, staffID string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUserByID(ctx context.Context, id int, exec ...core.DBExecutor) (User, error)
		GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (User, error)
		QueryUsersByRole(ctx context.Context, role string, exec ...core.DBExecutor) ([]User, error)
		AdminExists(ctx context.Context, exec ...core.DBExecutor) (bool, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		SetLastLogin(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	Service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
	}
)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService) *Service {
	return &Service{
		conf:    conf,
		repo:    repo,
		mailSvc: mailSvc,
	}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email, staffID string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, staffID, exclUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		case ErrStaffIDExists:
			field = "staffId"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Create signs a new user up. Only one admin may ever exist; any further
// admin signup is rejected as a validation error.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if nu.Role == RoleAdmin {
		exists, err := svc.repo.AdminExists(ctx)
		if err != nil {
			return User{}, errors.Wrap(err, "checking for existing admin")
		}
		if exists {
			return User{}, core.NewValidationError(ErrAdminExists, core.FieldError{Field: "role", Error: ErrAdminExists.Error()})
		}
	}

	now := time.Now().UTC()
	usr := User{
		Username:  nu.Username,
		Email:     nu.Email,
		StaffID:   null.NewString(nu.StaffID, nu.StaffID != ""),
		Role:      nu.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// Authenticate resolves credentials to a user. Unknown email and wrong
// password both return ErrAuthFailed; nothing distinguishes the two.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthFailed
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthFailed
	}
	usr, err = svc.repo.SetLastLogin(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// QueryMarkers lists all marker-role users (assignment creation fans marks
// out to them).
func (svc *Service) QueryMarkers(ctx context.Context) ([]User, error) {
	return svc.repo.QueryUsersByRole(ctx, RoleMarker)
}

// UpdateAccount applies a partial self-service update. profilePic, when
// non-empty, is the stored name of an already-saved picture.
func (svc *Service) UpdateAccount(ctx context.Context, orig User, ua UpdateAccount, profilePic string) (User, error) {
	usr := orig
	if ua.Username != "" {
		usr.Username = ua.Username
	}
	if ua.Email != "" {
		usr.Email = ua.Email
	}
	if ua.Password != "" {
		if err := usr.SetPassword(ua.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	if profilePic != "" {
		usr.ProfilePicture = null.StringFrom(profilePic)
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Username, Address: usr.Email}},
		Subject:      "Welcome to " + svc.conf.AppName,
		TemplateName: "welcome",
		TemplateData: core.ContextData{
			FrontendBaseURL: svc.conf.FrontendBaseURL,
			Data:            struct{ Username string }{usr.Username},
		},
	})
}
