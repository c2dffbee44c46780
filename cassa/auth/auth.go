// Package auth checks admin credentials.
package auth

import (
	"context"
	"crypto/subtle"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"
)

var tracer = otel.Tracer("cassa/auth")

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// BcryptAuthenticator accepts a single configured user whose password is
// stored as a bcrypt hash.
type BcryptAuthenticator struct {
	username     string
	passwordHash []byte
}

var _ Authenticator = (*BcryptAuthenticator)(nil)

func NewBcryptAuthenticator(username, passwordHash string) (*BcryptAuthenticator, error) {
	if username == "" {
		return nil, errors.New("auth: empty username")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, errors.Wrap(err, "auth: invalid password hash")
	}
	return &BcryptAuthenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
	}, nil
}

func (a *BcryptAuthenticator) Authenticate(ctx context.Context, username, password string) (bool, error) {
	_, span := tracer.Start(ctx, "BcryptAuthenticator.Authenticate")
	defer span.End()

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1

	err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	switch {
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	case err != nil:
		span.RecordError(err)
		return false, errors.Wrap(err, "compare password hash")
	}

	return userOK, nil
}

// HashPassword is used to produce the admin.password-hash setting.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}
