package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"ms-perfiles/internal/employee"
	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
)

var (
	ErrMissingSecret      = errors.New("secret not supplied")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrUnauthorized       = errors.New("secret does not match")
)

type CredentialDBLayer interface {
	FindByKey(ctx context.Context, key string) (*models.Credential, error)
}

// Verifier authenticates canonical employee keys against the credential
// store and answers lookups for the registration form.
type Verifier struct {
	DB     CredentialDBLayer
	Logger *logger.Logger
	cache  *gocache.Cache
}

// NewVerifier caches lookup answers for cacheTTL. A zero TTL disables the
// cache.
func NewVerifier(db CredentialDBLayer, cacheTTL time.Duration, log *logger.Logger) *Verifier {
	v := &Verifier{DB: db, Logger: log}
	if cacheTTL > 0 {
		v.cache = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return v
}

// Verify checks secret against the credential bound to key and returns the
// display name stored for it.
func (v *Verifier) Verify(ctx context.Context, key, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}

	cred, err := v.DB.FindByKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("find credential %s: %w", key, err)
	}
	if cred == nil {
		return "", ErrCredentialNotFound
	}

	if !VerifySecret(cred.PasswordHash, secret) {
		return "", ErrUnauthorized
	}
	return cred.DisplayName, nil
}

// Lookup normalizes raw and reports whether it resolves to a known
// credential. It never checks a secret.
func (v *Verifier) Lookup(ctx context.Context, raw string) (*models.EmployeeLookup, error) {
	key := employee.Normalize(raw)

	if v.cache != nil {
		if cached, ok := v.cache.Get(key); ok {
			if result, ok := cached.(models.EmployeeLookup); ok {
				v.Logger.Debug("CREDENTIALS", fmt.Sprintf("lookup cache hit for %s", key))
				return &result, nil
			}
		}
	}

	cred, err := v.DB.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup employee %s: %w", key, err)
	}

	result := models.EmployeeLookup{NormalizedKey: key}
	if cred != nil {
		result.Found = true
		result.DisplayName = cred.DisplayName
	}

	if v.cache != nil {
		v.cache.SetDefault(key, result)
	}
	return &result, nil
}

// HashSecret returns a salted bcrypt hash suitable for the password_hash
// column.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret compares secret with a stored bcrypt hash in constant time.
func VerifySecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
