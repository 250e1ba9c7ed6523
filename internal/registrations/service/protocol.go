package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	credentials "ms-perfiles/internal/credentials/service"
	"ms-perfiles/internal/employee"
	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
)

type CredentialVerifier interface {
	Verify(ctx context.Context, key, secret string) (string, error)
	Lookup(ctx context.Context, raw string) (*models.EmployeeLookup, error)
}

// EventPublisher announces appended events. Publishing is best effort.
type EventPublisher interface {
	PublishRegistrationCreated(ctx context.Context, event *models.RegistrationEvent) error
}

type RegisterRequest struct {
	Serial   string `json:"serial"`
	Model    string `json:"model"`
	Side     string `json:"side"`
	Employee string `json:"employee"`
	Password string `json:"password,omitempty"`
}

type RegisterResult struct {
	Event       models.EventView  `json:"event"`
	Count       int               `json:"count"`
	Ceiling     int               `json:"ceiling"`
	CanRegister bool              `json:"can_register"`
	Last        *models.LastEvent `json:"last,omitempty"`
}

type Protocol struct {
	Ledger      *Ledger
	Credentials CredentialVerifier
	Publisher   EventPublisher
	Logger      *logger.Logger
	Location    *time.Location
	Now         func() time.Time
}

func NewProtocol(ledger *Ledger, verifier CredentialVerifier, publisher EventPublisher, loc *time.Location, log *logger.Logger) *Protocol {
	if loc == nil {
		loc = time.Local
	}
	return &Protocol{
		Ledger:      ledger,
		Credentials: verifier,
		Publisher:   publisher,
		Logger:      log,
		Location:    loc,
		Now:         time.Now,
	}
}

// Register runs one attempt through validation, normalization,
// authentication and the conditional append. It stops at the first failure;
// nothing is written unless authentication succeeded.
func (p *Protocol) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	key, err := validateRegister(req)
	if err != nil {
		return nil, err
	}

	employeeKey := employee.Normalize(req.Employee)
	if req.Password == "" {
		return nil, &MissingSecretError{NormalizedKey: employeeKey}
	}

	displayName, err := p.Credentials.Verify(ctx, employeeKey, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, credentials.ErrMissingSecret):
		return nil, &MissingSecretError{NormalizedKey: employeeKey}
	case errors.Is(err, credentials.ErrCredentialNotFound):
		p.Logger.LogSecurity("CREDENTIAL_NOT_FOUND", fmt.Sprintf("employee %s on %s", employeeKey, key))
		return nil, &CredentialNotFoundError{NormalizedKey: employeeKey}
	case errors.Is(err, credentials.ErrUnauthorized):
		p.Logger.LogSecurity("AUTH_FAILED", fmt.Sprintf("employee %s on %s", employeeKey, key))
		return nil, &UnauthorizedError{NormalizedKey: employeeKey}
	default:
		p.Logger.Error("REGISTRATION", fmt.Sprintf("credential store failed for %s: %v", employeeKey, err))
		return nil, storeUnavailable("verify credential", err)
	}

	event, count, err := p.Ledger.Append(ctx, key, displayName, p.now())
	if err != nil {
		var limit *LimitReachedError
		if errors.As(err, &limit) {
			p.Logger.LogRegistration("LIMIT_REACHED", key.String(), fmt.Sprintf("%d/%d", limit.CurrentCount, limit.Ceiling))
		} else {
			p.Logger.Error("REGISTRATION", fmt.Sprintf("append failed for %s: %v", key, err))
		}
		return nil, err
	}
	p.Logger.LogRegistration("APPENDED", key.String(), fmt.Sprintf("event %d by %s (%d/%d)", event.ID, displayName, count, models.RegistrationCeiling))

	if p.Publisher != nil {
		if err := p.Publisher.PublishRegistrationCreated(ctx, event); err != nil {
			p.Logger.Warn("KAFKA", fmt.Sprintf("failed to publish event %d: %v", event.ID, err))
		}
	}

	return p.result(ctx, key, event, count), nil
}

// result recomputes the combination view after a write. The write already
// succeeded, so read failures fall back to what the append reported.
func (p *Protocol) result(ctx context.Context, key models.CombinationKey, event *models.RegistrationEvent, appendedCount int) *RegisterResult {
	count := appendedCount
	last := event.Last()

	if current, err := p.Ledger.CountFor(ctx, key); err == nil {
		count = current
	} else {
		p.Logger.Warn("REGISTRATION", fmt.Sprintf("recount %s after append: %v", key, err))
	}
	if latest, err := p.Ledger.LastEventFor(ctx, key); err == nil && latest != nil {
		last = latest.Last()
	}

	return &RegisterResult{
		Event:       event.View(),
		Count:       count,
		Ceiling:     models.RegistrationCeiling,
		CanRegister: count < models.RegistrationCeiling,
		Last:        last,
	}
}

// LookupEmployee resolves raw badge or typed input without checking a
// secret.
func (p *Protocol) LookupEmployee(ctx context.Context, raw string) (*models.EmployeeLookup, error) {
	result, err := p.Credentials.Lookup(ctx, raw)
	if err != nil {
		p.Logger.Error("REGISTRATION", fmt.Sprintf("employee lookup failed: %v", err))
		return nil, storeUnavailable("lookup employee", err)
	}
	return result, nil
}

func (p *Protocol) now() time.Time {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

func validateRegister(req RegisterRequest) (models.CombinationKey, error) {
	key := models.NormalizeKey(req.Serial, req.Model, req.Side)
	if err := validateKey(key); err != nil {
		return key, err
	}
	if strings.TrimSpace(req.Employee) == "" {
		return key, &ValidationError{Field: "employee", Message: "is required"}
	}
	return key, nil
}

func validateKey(key models.CombinationKey) error {
	switch {
	case key.Serial == "":
		return &ValidationError{Field: "serial", Message: "is required"}
	case key.Model == "":
		return &ValidationError{Field: "model", Message: "is required"}
	case utf8.RuneCountInString(key.Serial) > models.MaxSerialLength:
		return &ValidationError{Field: "serial", Message: fmt.Sprintf("must be at most %d characters", models.MaxSerialLength)}
	case utf8.RuneCountInString(key.Model) > models.MaxModelLength:
		return &ValidationError{Field: "model", Message: fmt.Sprintf("must be at most %d characters", models.MaxModelLength)}
	case key.Side == "":
		return &ValidationError{Field: "side", Message: "is required"}
	case !key.Side.Valid():
		return &ValidationError{Field: "side", Message: "must be TOP or BOT"}
	}
	return nil
}
