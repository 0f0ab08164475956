package user

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrIDNumberExists = errors.New("a user with this ID number already exists")
	ErrNoAccount      = errors.New("user has no account yet")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		// CreateProfile returns ErrIDNumberExists when the ID number is taken.
		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		// QueryProfiles applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Profile.Name, Profile.IDNumber or Profile.Email.
		QueryProfiles(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Profile, error)
		GetProfile(ctx context.Context, filter GetFilter) (Profile, error)
		// ResolveIDNumbers maps each known ID number to its Profile id.
		ResolveIDNumbers(ctx context.Context, idNumbers []string) (map[string]string, error)
		UpdateProfile(ctx context.Context, p Profile) (Profile, error)
		DeleteProfilesByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo     Repository
		backend  identity.Backend
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, backend identity.Backend, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{
		repo:     repo,
		backend:  backend,
		validate: validate,
		logger:   logger,
	}
}

// Login signs client in as the owner of idNumber and caches the owner as its principal.
// A placeholder profile gets an account created with the supplied password, then linked.
// An unknown ID number and a wrong password both yield identity.ErrInvalidCredentials.
func (svc *Service) Login(ctx context.Context, client *identity.Client, idNumber, password string) (Profile, error) {
	idNumber = core.CleanString(idNumber)
	if idNumber == "" || password == "" {
		return Profile{}, identity.ErrInvalidCredentials
	}

	p, err := svc.repo.GetProfile(ctx, GetFilter{IDNumber: idNumber})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Profile{}, identity.ErrInvalidCredentials
		}
		return Profile{}, errors.Wrap(err, "finding user by ID number")
	}

	sess, err := client.SignIn(ctx, p.Email, password)
	if err != nil {
		if identity.KindOf(err) != identity.KindInvalidCredentials {
			return Profile{}, errors.Wrap(err, "signing in")
		}
		if !p.IsPlaceholder() {
			return Profile{}, identity.ErrInvalidCredentials
		}
		if p, err = svc.linkPlaceholder(ctx, client, p, password); err != nil {
			return Profile{}, err
		}
	} else if p.AccountID.String != sess.AccountID {
		svc.logger.Warn(fmt.Sprintf("profile %s signed in with account %s, linked to %q", p.ID, sess.AccountID, p.AccountID.String))
	}

	client.SetPrincipal(p.Principal())
	return p, nil
}

func (svc *Service) linkPlaceholder(ctx context.Context, client *identity.Client, p Profile, password string) (Profile, error) {
	sess, err := client.SignUp(ctx, p.Email, password)
	if err != nil {
		if identity.KindOf(err) == identity.KindAlreadyRegistered {
			return Profile{}, identity.ErrInvalidCredentials
		}
		return Profile{}, errors.Wrap(err, "signing up placeholder user")
	}
	if sess.AccessToken == "" {
		if sess, err = client.SignIn(ctx, p.Email, password); err != nil {
			return Profile{}, errors.Wrap(err, "signing in placeholder user")
		}
	}

	p.AccountID = null.StringFrom(sess.AccountID)
	p.UpdatedAt = nowFunc()
	p, err = svc.repo.UpdateProfile(ctx, p)
	if err != nil {
		return Profile{}, errors.Wrap(err, "linking account")
	}
	svc.logger.Info(fmt.Sprintf("placeholder profile %s linked to account %s", p.ID, sess.AccountID))
	return p, nil
}

// Create creates an account and its Profile. Used to bootstrap administrators.
func (svc *Service) Create(ctx context.Context, np NewProfile) (Profile, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Profile{}, err
	}
	if _, err := svc.repo.GetProfile(ctx, GetFilter{IDNumber: np.IDNumber}); err == nil {
		return Profile{}, idNumberExistsErr()
	} else if errors.Cause(err) != ErrNotFound {
		return Profile{}, errors.Wrap(err, "checking ID number uniqueness")
	}

	accountID, err := svc.backend.CreateAccount(ctx, np.Email, np.Password)
	if errors.Is(err, identity.ErrPrivilegedUnsupported) {
		var sess identity.Session
		sess, err = svc.backend.SignUp(ctx, np.Email, np.Password)
		accountID = sess.AccountID
	}
	if err != nil {
		if identity.KindOf(err) == identity.KindAlreadyRegistered {
			return Profile{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: "an account with this email already exists"})
		}
		return Profile{}, errors.Wrap(err, "creating account")
	}

	now := nowFunc()
	p, err := svc.repo.CreateProfile(ctx, Profile{
		AccountID:  null.StringFrom(accountID),
		IDNumber:   np.IDNumber,
		Name:       np.Name,
		Email:      np.Email,
		Role:       np.Role,
		TrackLevel: np.TrackLevel,
		Section:    np.Section,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if dErr := svc.backend.DeleteAccount(ctx, accountID); dErr != nil {
			svc.logger.Error(fmt.Sprintf("deleting orphan account %s: %v", accountID, dErr), dErr)
		}
		if errors.Cause(err) == ErrIDNumberExists {
			return Profile{}, idNumberExistsErr()
		}
		return Profile{}, errors.Wrap(err, "creating profile")
	}
	return p, nil
}

// CompleteProfile stores the contacts a student fills in after their first login.
func (svc *Service) CompleteProfile(ctx context.Context, id string, data CompleteProfile) (Profile, error) {
	if err := data.Validate(svc.validate); err != nil {
		return Profile{}, err
	}
	p, err := svc.GetByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	p.GuardianName = null.StringFrom(data.GuardianName)
	p.GuardianContact = null.StringFrom(data.GuardianContact)
	p.AdvisorName = null.StringFrom(data.AdvisorName)
	p.AdvisorContact = null.StringFrom(data.AdvisorContact)
	p.UpdatedAt = nowFunc()
	return svc.repo.UpdateProfile(ctx, p)
}

// ChangePassword changes the password of the account client is signed in with.
func (svc *Service) ChangePassword(ctx context.Context, client *identity.Client, id string, data ChangePassword) error {
	p, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := data.Validate(svc.validate, p); err != nil {
		return err
	}
	if err := client.UpdatePassword(ctx, data.Password); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return nil
}

// SetPassword sets the password of idNumber's account without knowing the old one.
func (svc *Service) SetPassword(ctx context.Context, idNumber, password string) error {
	p, err := svc.repo.GetProfile(ctx, GetFilter{IDNumber: core.CleanString(idNumber)})
	if err != nil {
		return err
	}
	if p.IsPlaceholder() {
		return ErrNoAccount
	}
	return errors.Wrap(svc.backend.SetPassword(ctx, p.AccountID.String, password), "setting password")
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Profile, error) {
	return svc.repo.QueryProfiles(ctx, filter, ordering)
}

func (svc *Service) Get(ctx context.Context, filter GetFilter) (Profile, error) {
	return svc.repo.GetProfile(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return svc.repo.GetProfile(ctx, GetFilter{ID: id})
}

func (svc *Service) Update(ctx context.Context, id string, data UpdateProfile) (Profile, error) {
	if err := data.Validate(svc.validate); err != nil {
		return Profile{}, err
	}
	p, err := svc.GetByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}

	if data.Name != "" {
		p.Name = data.Name
	}
	if data.Role != "" {
		p.Role = data.Role
	}
	if data.TrackLevel != nil {
		p.TrackLevel = *data.TrackLevel
	}
	if data.Section != nil {
		p.Section = *data.Section
	}
	setNullable(&p.GuardianName, data.GuardianName)
	setNullable(&p.GuardianContact, data.GuardianContact)
	setNullable(&p.AdvisorName, data.AdvisorName)
	setNullable(&p.AdvisorContact, data.AdvisorContact)
	p.UpdatedAt = nowFunc()
	return svc.repo.UpdateProfile(ctx, p)
}

// Delete deletes each profile's account, then the profile.
// Profiles whose account could not be deleted are kept.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		p, err := svc.GetByID(ctx, id)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				continue
			}
			return err
		}
		if !p.IsPlaceholder() {
			if err := svc.backend.DeleteAccount(ctx, p.AccountID.String); err != nil && identity.KindOf(err) != identity.KindNotFound {
				return errors.Wrapf(err, "deleting account of %s", p.IDNumber)
			}
		}
		if err := svc.repo.DeleteProfilesByID(ctx, p.ID); err != nil {
			return errors.Wrap(err, "deleting profile")
		}
	}
	return nil
}

func setNullable(dst *null.String, val *string) {
	if val == nil {
		return
	}
	*dst = null.NewString(*val, *val != "")
}

func idNumberExistsErr() error {
	return core.NewValidationError(ErrIDNumberExists, core.FieldError{Field: "id_number", Error: ErrIDNumberExists.Error()})
}
