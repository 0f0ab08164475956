package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/identity"
)

const (
	audience         = "Disiplin"
	bearerScheme     = "Bearer"
	contextClaimsKey = "userClaims"
	contextClientKey = "identityClient"
)

var nowFunc = time.Now // mockable

// Claims represents the authorization claims transmitted via a JWT.
// StandardClaims.Id keys the actor's identity.Client in the Registry.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	IDNumber     string `json:"id_number,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	IsAdmin      bool   `json:"is_admin,omitempty"`
}

type tokenizer struct {
	key        []byte
	method     jwt.SigningMethod
	issuer     string
	expiration time.Duration
	refresh    time.Duration
}

func newTokenizer(conf *core.Config) *tokenizer {
	return &tokenizer{
		key:        []byte(conf.SecretKey),
		method:     jwt.SigningMethodHS256,
		issuer:     conf.AppName,
		expiration: conf.Server.JWTExpirationDelta,
		refresh:    conf.Server.JWTRefreshExpirationDelta,
	}
}

// Claims returns new claims for p, under a new token id.
func (t *tokenizer) Claims(p identity.Principal, origIat ...int64) *Claims {
	now := nowFunc()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   p.ProfileID,
			Audience:  audience,
			ExpiresAt: now.Add(t.expiration).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		IDNumber:     p.IDNumber,
		Name:         p.Name,
		Email:        p.Email,
		IsAdmin:      p.IsAdmin(),
	}
}

// Generate signs the claims.
func (t *tokenizer) Generate(claims *Claims) (string, error) {
	ss, err := jwt.NewWithClaims(t.method, claims).SignedString(t.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (t *tokenizer) Parse(token string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		if tk.Method.Alg() != t.method.Alg() {
			return nil, errors.Errorf("unexpected jwt signing method=%v", tk.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, errors.New("invalid audience")
	}
	return claims, nil
}

// RefreshExpired reports whether the refresh window of claims is over.
func (t *tokenizer) RefreshExpired(claims Claims) bool {
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(t.refresh)
	return nowFunc().After(expTime)
}

// authMiddleware checks the bearer token and loads the actor's identity.Client.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
			l := len(bearerScheme)
			if len(auth) <= l+1 || !strings.EqualFold(auth[:l], bearerScheme) {
				return errMissingToken
			}
			claims, err := s.tokens.Parse(strings.TrimSpace(auth[l+1:]))
			if err != nil {
				return &echo.HTTPError{Code: http.StatusUnauthorized, Message: "invalid or expired jwt", Internal: err}
			}
			client, ok := s.deps.Registry.Get(claims.Id)
			if !ok {
				return errSessionExpired
			}
			ctx.Set(contextClaimsKey, *claims)
			ctx.Set(contextClientKey, client)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(Claims); ok {
		return claims, nil
	}
	return Claims{}, errUnauthorized
}

func getContextClient(ctx echo.Context) (*identity.Client, error) {
	if c, ok := ctx.Get(contextClientKey).(*identity.Client); ok {
		return c, nil
	}
	return nil, errUnauthorized
}

// getContextPrincipal returns the actor, as cached on their client.
func getContextPrincipal(ctx echo.Context) (identity.Principal, error) {
	client, err := getContextClient(ctx)
	if err != nil {
		return identity.Principal{}, err
	}
	if p, ok := client.Principal(); ok {
		return p, nil
	}
	return identity.Principal{}, errUnauthorized
}
