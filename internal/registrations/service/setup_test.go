package registrations_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	credentialsdb "ms-perfiles/internal/credentials/db"
	credentials "ms-perfiles/internal/credentials/service"
	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
	eventsdb "ms-perfiles/internal/registrations/db"
	"ms-perfiles/internal/registrations/lock"
	registrations "ms-perfiles/internal/registrations/service"
)

const correctPass = "correct-pass"

type fixture struct {
	events    *eventsdb.DB
	protocol  *registrations.Protocol
	reporting *registrations.Reporting
	admin     *registrations.Admin
	publisher *recordingPublisher
}

func openMemoryDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

// setupService wires the protocol against two separate in-memory stores, as
// in production where events and credentials may live apart.
func setupService(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	eventsBun := openMemoryDB(t)
	if err := eventsdb.CreateSchema(ctx, eventsBun); err != nil {
		t.Fatalf("Failed to create events schema: %v", err)
	}

	credsBun := openMemoryDB(t)
	if err := credentialsdb.CreateSchema(ctx, credsBun); err != nil {
		t.Fatalf("Failed to create credentials schema: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(correctPass), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash secret: %v", err)
	}
	seed := []models.Credential{
		{DisplayName: "Ana Torres", EmployeeNumber: "42A", LoginAlias: "atorres", PasswordHash: string(hash)},
		{DisplayName: "Luis Pena", EmployeeNumber: "179A", PasswordHash: string(hash)},
	}
	if _, err := credsBun.NewInsert().Model(&seed).Exec(ctx); err != nil {
		t.Fatalf("Failed to seed credentials: %v", err)
	}

	log := logger.Discard()
	events := eventsdb.New(eventsBun, lock.NewKeyedMutex())
	verifier := credentials.NewVerifier(&credentialsdb.DB{Bun: credsBun}, 0, log)
	publisher := &recordingPublisher{}

	protocol := registrations.NewProtocol(registrations.NewLedger(events), verifier, publisher, time.UTC, log)
	protocol.Now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	return &fixture{
		events:    events,
		protocol:  protocol,
		reporting: registrations.NewReporting(events, log),
		admin:     registrations.NewAdmin(events, log),
		publisher: publisher,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.RegistrationEvent
	err    error
}

func (p *recordingPublisher) PublishRegistrationCreated(ctx context.Context, event *models.RegistrationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// MockEventDBLayer is a mock implementation of the EventDBLayer interface
type MockEventDBLayer struct {
	mock.Mock
}

func (m *MockEventDBLayer) CountFor(ctx context.Context, key models.CombinationKey) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

func (m *MockEventDBLayer) LastEventFor(ctx context.Context, key models.CombinationKey) (*models.RegistrationEvent, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RegistrationEvent), args.Error(1)
}

func (m *MockEventDBLayer) AppendIfBelow(ctx context.Context, event *models.RegistrationEvent, ceiling int) (bool, int, error) {
	args := m.Called(ctx, event, ceiling)
	return args.Bool(0), args.Int(1), args.Error(2)
}

func (m *MockEventDBLayer) HistoryBySerial(ctx context.Context, serial string) ([]models.RegistrationEvent, error) {
	args := m.Called(ctx, serial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RegistrationEvent), args.Error(1)
}

func (m *MockEventDBLayer) ListLatestBySerial(ctx context.Context, offset, limit int) ([]models.SerialRow, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SerialRow), args.Error(1)
}

func (m *MockEventDBLayer) CountSerials(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockEventDBLayer) Stats(ctx context.Context, ceiling int) (*models.GeneralStats, error) {
	args := m.Called(ctx, ceiling)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneralStats), args.Error(1)
}

func (m *MockEventDBLayer) GetByID(ctx context.Context, id int64) (*models.RegistrationEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RegistrationEvent), args.Error(1)
}

func (m *MockEventDBLayer) UpdateEvent(ctx context.Context, event *models.RegistrationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventDBLayer) DeleteEvent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
