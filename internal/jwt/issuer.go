// Package jwt emite y valida los access tokens (HS256) de los usuarios del
// store de identidad.
package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/docstore/internal/identity"
)

// Config del emisor. Key es el secreto HMAC; Lifetime el TTL del token.
type Config struct {
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	Key      string        `yaml:"key"`
	Lifetime time.Duration `yaml:"lifetime"`
}

// MinKeyLen es el largo mínimo del secreto HMAC (256 bits).
const MinKeyLen = 32

var ErrWeakKey = errors.New("jwt: signing key must be at least 32 bytes")

// Claims del access token. El ID del usuario va en "sub".
type Claims struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	jwtv5.RegisteredClaims
}

// Issuer firma tokens con un secreto compartido.
type Issuer struct {
	iss      string
	aud      string
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewIssuer valida la config y arma el emisor. Lifetime 0 usa 60 minutos.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Key) < MinKeyLen {
		return nil, ErrWeakKey
	}
	lt := cfg.Lifetime
	if lt <= 0 {
		lt = 60 * time.Minute
	}
	return &Issuer{
		iss:      cfg.Issuer,
		aud:      cfg.Audience,
		key:      []byte(cfg.Key),
		lifetime: lt,
		now:      time.Now,
	}, nil
}

// Generate emite un token para u con los roles dados. Retorna el token y su expiración.
func (i *Issuer) Generate(u *identity.User, roles []string) (string, time.Time, error) {
	if u == nil || u.ID.IsZero() {
		return "", time.Time{}, errors.New("jwt: user has no id")
	}
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.lifetime)

	claims := Claims{
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     roles,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.iss,
			Subject:   u.IDHex(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}
	if i.aud != "" {
		claims.Audience = jwtv5.ClaimStrings{i.aud}
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
