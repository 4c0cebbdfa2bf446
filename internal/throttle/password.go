package throttle

import (
	"context"
	"crypto/subtle"
)

// PasswordGate admits any caller presenting the shared password.
type PasswordGate struct {
	password []byte
}

var _ Gate = (*PasswordGate)(nil)

func NewPasswordGate(password string) *PasswordGate {
	return &PasswordGate{password: []byte(password)}
}

func (g *PasswordGate) Visit(_ context.Context, v Visitor) error {
	if v.Credential == "" {
		return ErrMissingCredential
	}
	if subtle.ConstantTimeCompare([]byte(v.Credential), g.password) != 1 {
		return ErrBadCredential
	}
	return nil
}
