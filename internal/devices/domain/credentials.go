package devices

import (
	"context"
	"crypto/subtle"
	"errors"
)

// KeyVerifier compares a stored credential against a presented one. Injected
// so hashed-credential verification can replace plain keys without touching
// the ingestion path.
type KeyVerifier interface {
	Verify(stored, presented string) bool
}

// PlainKeyVerifier compares raw API keys in constant time.
type PlainKeyVerifier struct{}

// Verify reports whether presented equals stored.
func (PlainKeyVerifier) Verify(stored, presented string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

// Authenticator resolves a claimed device identity and credential.
type Authenticator struct {
	repo     DeviceRepository
	verifier KeyVerifier
}

// NewAuthenticator constructs an authenticator.
func NewAuthenticator(repo DeviceRepository, verifier KeyVerifier) (*Authenticator, error) {
	if repo == nil {
		return nil, errors.New("devices: nil repository")
	}
	if verifier == nil {
		verifier = PlainKeyVerifier{}
	}
	return &Authenticator{repo: repo, verifier: verifier}, nil
}

// Authenticate loads the device and checks the presented key. It performs no
// writes and must run before any ingestion side effect.
func (a *Authenticator) Authenticate(ctx context.Context, deviceID, presentedKey string) (*Device, error) {
	if a == nil || a.repo == nil {
		return nil, errors.New("devices: nil authenticator")
	}
	if deviceID == "" {
		return nil, ErrDeviceNotFound
	}
	device, err := a.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if !a.verifier.Verify(device.APIKey, presentedKey) {
		return nil, ErrInvalidAPIKey
	}
	return device, nil
}
