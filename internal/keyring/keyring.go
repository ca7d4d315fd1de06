// Package keyring stores planmate secrets in the OS keyring under the
// application service name, one account per secret.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/planmate/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is stored for the account
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be reached
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Account names a secret slot.
type Account string

const (
	DatabaseConnection Account = constants.KeyringUserDatabase
	AIAPIKey           Account = constants.KeyringUserAIKey
)

func (a Account) String() string { return string(a) }

// Get reads the secret for account.
func Get(account Account) (string, error) {
	v, err := keyring.Get(constants.AppName, string(account))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return v, nil
}

// Set stores a non-empty secret for account.
func Set(account Account, secret string) error {
	if secret == "" {
		return fmt.Errorf("%s cannot be empty", account)
	}
	if err := keyring.Set(constants.AppName, string(account), secret); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", account, err)
	}
	return nil
}

// Delete removes the secret for account.
func Delete(account Account) error {
	if err := keyring.Delete(constants.AppName, string(account)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", account, err)
	}
	return nil
}

// IsAvailable is a best-effort check: a not-found read still proves the keyring answers.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "availability-check")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
