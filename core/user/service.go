package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ahadi/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	GetFilter struct {
		ID              string
		Username        string
		Email           string
		UsernameOrEmail []string
	}

	// ProfileFilter looks a profile up by its own ID or its owning user's ID.
	ProfileFilter struct {
		ID     string
		UserID string
	}

	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

		CreateClinician(ctx context.Context, cl Clinician, exec ...core.DBExecutor) (Clinician, error)
		GetClinician(ctx context.Context, filter ProfileFilter, exec ...core.DBExecutor) (Clinician, error)
		UpdateClinician(ctx context.Context, cl Clinician, exec ...core.DBExecutor) (Clinician, error)

		CreateProvider(ctx context.Context, pr Provider, exec ...core.DBExecutor) (Provider, error)
		GetProvider(ctx context.Context, filter ProfileFilter, exec ...core.DBExecutor) (Provider, error)
		UpdateProvider(ctx context.Context, pr Provider, exec ...core.DBExecutor) (Provider, error)
	}

	ServiceInterface interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Register(ctx context.Context, nu NewUser) (User, error)
		Activate(ctx context.Context, uid, token string) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		ClinicianByUserID(ctx context.Context, userID string) (Clinician, error)
		ProviderByUserID(ctx context.Context, userID string) (Provider, error)
		UpdateProfile(ctx context.Context, usr User, up UpdateProfile) error
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register creates an inactive account with its role profile and mails an
// activation link. The profile only becomes usable once the account is activated.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Username:    nu.Username,
		Email:       nu.Email,
		IsClinician: nu.Role == RoleClinician,
		IsProvider:  nu.Role == RoleProvider,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	usr.SetActive(false)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}

	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		var err error
		if usr, err = svc.repo.CreateUser(ctx, usr, tx); err != nil {
			return errors.Wrap(err, "creating user")
		}
		if usr.IsClinician {
			cl := Clinician{
				UserID:      usr.ID,
				FirstName:   nu.FirstName,
				LastName:    nu.LastName,
				Institution: nu.Institution,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if _, err = svc.repo.CreateClinician(ctx, cl, tx); err != nil {
				return errors.Wrap(err, "creating clinician profile")
			}
		} else if usr.IsProvider {
			pr := Provider{
				UserID:      usr.ID,
				Institution: nu.Institution,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if _, err = svc.repo.CreateProvider(ctx, pr, tx); err != nil {
				return errors.Wrap(err, "creating provider profile")
			}
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}

	svc.sendActivationMail(usr)
	return usr, nil
}

// Activate verifies the emailed token and enables the account.
func (svc *service) Activate(ctx context.Context, uid, token string) (User, error) {
	id, err := decodeUID(uid)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(errInvalidToken)
		}
		return User{}, err
	}

	maxAge := time.Duration(svc.conf.AccountActivationDays) * 24 * time.Hour
	if err = verifyToken(svc.conf, usr, token, maxAge); err != nil {
		return User{}, core.NewValidationError(err)
	}

	usr.SetActive(true)
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{uname, uname}})
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUser(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(errInvalidToken)
		}
		return err
	}

	if err = verifyToken(svc.conf, usr, rp.Token, svc.conf.PasswordResetTimeoutDelta); err != nil {
		return core.NewValidationError(err)
	}

	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) ClinicianByUserID(ctx context.Context, userID string) (Clinician, error) {
	return svc.repo.GetClinician(ctx, ProfileFilter{UserID: userID})
}

func (svc *service) ProviderByUserID(ctx context.Context, userID string) (Provider, error) {
	return svc.repo.GetProvider(ctx, ProfileFilter{UserID: userID})
}

func (svc *service) UpdateProfile(ctx context.Context, usr User, up UpdateProfile) error {
	now := time.Now().UTC()
	switch {
	case usr.IsClinician:
		cl, err := svc.repo.GetClinician(ctx, ProfileFilter{UserID: usr.ID})
		if err != nil {
			return err
		}
		cl.FirstName = core.CleanString(up.FirstName)
		cl.LastName = core.CleanString(up.LastName)
		cl.Institution = core.CleanString(up.Institution)
		cl.UpdatedAt = now
		_, err = svc.repo.UpdateClinician(ctx, cl)
		return err
	case usr.IsProvider:
		pr, err := svc.repo.GetProvider(ctx, ProfileFilter{UserID: usr.ID})
		if err != nil {
			return err
		}
		inst := core.CleanString(up.Institution)
		if inst == "" {
			return core.NewValidationError(nil, core.FieldError{Field: "institution", Error: "this field is required"})
		}
		pr.Institution = inst
		pr.UpdatedAt = now
		_, err = svc.repo.UpdateProvider(ctx, pr)
		return err
	}
	return core.ErrForbidden
}

func (svc *service) sendActivationMail(usr User) {
	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Activate your account",
		TemplateName: "activation",
		TemplateData: struct {
			Username string
			UID      string
			Token    string
			Days     int
		}{usr.Username, EncodeUID(usr), token, svc.conf.AccountActivationDays},
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nActivate your account within %d days: %s/account/activate/%s/%s\n",
			usr.Username, svc.conf.AccountActivationDays, svc.conf.FrontendBaseURL, EncodeUID(usr), token),
	})
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password-reset",
		TemplateData: struct {
			Username string
			UID      string
			Token    string
		}{usr.Username, EncodeUID(usr), token},
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nReset your password: %s/account/password-reset/%s/%s\n",
			usr.Username, svc.conf.FrontendBaseURL, EncodeUID(usr), token),
	})
}
