package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/docstore/internal/identity"
	"github.com/dropDatabas3/docstore/internal/jwt"
	"github.com/dropDatabas3/docstore/internal/observability/logger"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errUserBlocked        = errors.New("user is blocked")
)

// issueToken verifica usuario y contraseña y emite el access token.
// Un usuario bloqueado no recibe token aunque la contraseña sea correcta.
func issueToken(ctx context.Context, users *identity.UserStore, iss *jwt.Issuer, log *zap.Logger, email, plain string) (string, time.Time, error) {
	u, err := users.FindByEmail(ctx, email)
	if err != nil {
		return "", time.Time{}, err
	}
	if u == nil {
		return "", time.Time{}, errInvalidCredentials
	}
	blocked, reason, _, err := users.GetLockout(ctx, u)
	if err != nil {
		return "", time.Time{}, err
	}
	if blocked {
		log.Warn("token denied: user blocked", logger.UserID(u.IDHex()), zap.String("reason", reason))
		if reason != "" {
			return "", time.Time{}, fmt.Errorf("%w: %s", errUserBlocked, reason)
		}
		return "", time.Time{}, errUserBlocked
	}

	ok, err := users.CheckPassword(ctx, u, plain)
	if err != nil {
		return "", time.Time{}, err
	}
	if !ok {
		n, err := users.IncrementFailedLogins(ctx, u)
		if err != nil {
			log.Error("failed login counter not updated", logger.UserID(u.IDHex()), logger.Err(err))
		} else {
			log.Info("failed login", logger.UserID(u.IDHex()), logger.Count(n))
		}
		return "", time.Time{}, errInvalidCredentials
	}

	names, err := users.GetRoles(ctx, u)
	if err != nil {
		return "", time.Time{}, err
	}
	tok, exp, err := iss.Generate(u, names)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := users.ResetFailedLogins(ctx, u); err != nil {
		log.Error("failed login counter not reset", logger.UserID(u.IDHex()), logger.Err(err))
	}
	return tok, exp, nil
}
