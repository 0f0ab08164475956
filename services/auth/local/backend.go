// Package local keeps the accounts in the application database.
package local

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

const uniqueViolation = "23505"

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

type (
	Backend struct {
		db     *sqlx.DB
		secret []byte
		issuer string
		ttl    time.Duration
	}

	account struct {
		ID           string    `db:"id"`
		Email        string    `db:"email"`
		PasswordHash []byte    `db:"password_hash"`
		CreatedAt    time.Time `db:"created_at"`
		UpdatedAt    time.Time `db:"updated_at"`
	}
)

var _ identity.Backend = (*Backend)(nil)

func NewBackend(db *sqlx.DB, conf *core.Config) *Backend {
	return &Backend{
		db:     db,
		secret: []byte(conf.SecretKey),
		issuer: conf.AppName,
		ttl:    conf.Server.JWTExpirationDelta,
	}
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	var acc account
	err := b.db.GetContext(ctx, &acc, `SELECT id, email, password_hash, created_at, updated_at FROM accounts WHERE email = $1`, normalize(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Session{}, identity.NewAuthError("Invalid login credentials", identity.ErrInvalidCredentials)
		}
		return identity.Session{}, errors.Wrap(err, "getting account")
	}
	if bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)) != nil {
		return identity.Session{}, identity.NewAuthError("Invalid login credentials", identity.ErrInvalidCredentials)
	}
	return b.issue(acc)
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	acc, err := b.create(ctx, email, password)
	if err != nil {
		return identity.Session{}, err
	}
	return b.issue(acc)
}

func (b *Backend) CreateAccount(ctx context.Context, email, password string) (string, error) {
	acc, err := b.create(ctx, email, password)
	if err != nil {
		return "", err
	}
	return acc.ID, nil
}

func (b *Backend) UpdatePassword(ctx context.Context, session identity.Session, password string) error {
	accountID, err := parseToken(b.secret, session.AccessToken)
	if err != nil {
		return err
	}
	if accountID != session.AccountID {
		return identity.NewAuthError("invalid session", nil, identity.KindPolicyDenied)
	}
	return b.SetPassword(ctx, accountID, password)
}

func (b *Backend) SetPassword(ctx context.Context, accountID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	res, err := b.db.ExecContext(ctx, `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, nowFunc(), accountID)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	return checkAffected(res)
}

func (b *Backend) DeleteAccount(ctx context.Context, accountID string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return errors.Wrap(err, "deleting account")
	}
	return checkAffected(res)
}

func (b *Backend) create(ctx context.Context, email, password string) (account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return account{}, errors.Wrap(err, "hashing password")
	}
	now := nowFunc()
	acc := account{ID: uuid.NewString(), Email: normalize(email), PasswordHash: hash, CreatedAt: now, UpdatedAt: now}

	_, err = b.db.NamedExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, created_at, updated_at)
		VALUES (:id, :email, :password_hash, :created_at, :updated_at)`, acc)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return account{}, identity.NewAuthError("User already registered", err)
		}
		return account{}, errors.Wrap(err, "inserting account")
	}
	return acc, nil
}

func (b *Backend) issue(acc account) (identity.Session, error) {
	token, exp, err := issueToken(b.secret, b.issuer, acc.ID, acc.Email, b.ttl, nowFunc())
	if err != nil {
		return identity.Session{}, err
	}
	return identity.Session{
		AccountID:    acc.ID,
		Email:        acc.Email,
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    exp,
	}, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return identity.ErrAccountNotFound
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
