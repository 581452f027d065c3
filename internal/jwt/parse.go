package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("jwt: invalid token")

// Parse valida firma (solo HS256), exp/nbf con 30s de tolerancia, issuer y
// audience si están configurados. Cualquier falla envuelve ErrInvalidToken.
func (i *Issuer) Parse(token string) (*Claims, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithLeeway(30 * time.Second),
		jwtv5.WithTimeFunc(i.now),
		jwtv5.WithExpirationRequired(),
	}
	if i.iss != "" {
		opts = append(opts, jwtv5.WithIssuer(i.iss))
	}
	if i.aud != "" {
		opts = append(opts, jwtv5.WithAudience(i.aud))
	}

	var claims Claims
	tk, err := jwtv5.ParseWithClaims(token, &claims, func(*jwtv5.Token) (any, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tk.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
