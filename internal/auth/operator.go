package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Operator is the single account allowed to trigger runs. PasswordHash is a
// bcrypt hash; an empty hash disables login.
type Operator struct {
	Username     string
	PasswordHash string
}

func (o Operator) Enabled() bool {
	return o.Username != "" && o.PasswordHash != ""
}

func (o Operator) Authenticate(username, password string) error {
	if !o.Enabled() {
		return ErrInvalidCredentials
	}
	nameOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(o.Username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	pwErr := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password))
	if !nameOK || pwErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword is used by the cli to produce PRICEHUB_OPERATOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
