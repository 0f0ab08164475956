package local

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core/identity"
)

const audience = "accounts"

type accessClaims struct {
	jwt.StandardClaims
	Email string `json:"email"`
}

// issueToken signs an access token for the account.
func issueToken(secret []byte, issuer, accountID, email string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := accessClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    issuer,
			Subject:   accountID,
			Audience:  audience,
			ExpiresAt: exp.Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "signing access token")
	}
	return token, exp, nil
}

// parseToken returns the account id of a valid access token.
func parseToken(secret []byte, token string) (string, error) {
	claims := new(accessClaims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !claims.VerifyAudience(audience, true) {
		return "", identity.NewAuthError("invalid session", err, identity.KindPolicyDenied)
	}
	return claims.Subject, nil
}
