package registration_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	credentialsdb "ms-perfiles/internal/credentials/db"
	credentials "ms-perfiles/internal/credentials/service"
	"ms-perfiles/internal/kafka"
	"ms-perfiles/internal/logger"
	"ms-perfiles/internal/models"
	eventsdb "ms-perfiles/internal/registrations/db"
	"ms-perfiles/internal/registrations/lock"
	"ms-perfiles/internal/registrations/registration_api"
	registrations "ms-perfiles/internal/registrations/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
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

func setupServer(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()

	eventsBun := openMemoryDB(t)
	require.NoError(t, eventsdb.CreateSchema(ctx, eventsBun))
	credsBun := openMemoryDB(t)
	require.NoError(t, credentialsdb.CreateSchema(ctx, credsBun))

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = credsBun.NewInsert().Model(&models.Credential{
		DisplayName: "Ana Torres", EmployeeNumber: "42A", PasswordHash: string(hash),
	}).Exec(ctx)
	require.NoError(t, err)

	events := eventsdb.New(eventsBun, lock.NewKeyedMutex())
	verifier := credentials.NewVerifier(&credentialsdb.DB{Bun: credsBun}, time.Minute, log)
	protocol := registrations.NewProtocol(registrations.NewLedger(events), verifier, kafka.NoopPublisher{}, time.UTC, log)

	handler := registration_api.NewHandler(
		protocol,
		registrations.NewReporting(events, log),
		registrations.NewAdmin(events, log),
		log,
	)
	return registration_api.NewRouter(handler)
}

func do(t *testing.T, srv http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func register(serial, model, side, employee, password string) map[string]string {
	return map[string]string{
		"serial": serial, "model": model, "side": side, "employee": employee, "password": password,
	}
}

func TestRegisterAndCount(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodPost, "/api/perfiles", register("SN1", "MRR35", "TOP", "00042A", "correct-pass"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)

	var result registrations.RegisterResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, "Ana Torres", result.Event.EmployeeName)

	rec, env = do(t, srv, http.MethodGet, "/api/perfiles/count/SN1/MRR35/TOP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count models.CombinationCount
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, 1, count.Count)
	assert.True(t, count.CanRegister)
	require.NotNil(t, count.Last)
	assert.Equal(t, "Ana Torres", count.Last.EmployeeName)
}

func TestEscapedPathSegmentsAreDecoded(t *testing.T) {
	srv := setupServer(t)

	rec, _ := do(t, srv, http.MethodPost, "/api/perfiles", register("SN/1", "MGH100 RCU", "TOP", "42A", "correct-pass"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, srv, http.MethodGet, "/api/perfiles/count/SN%2F1/MGH100%20RCU/TOP", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count models.CombinationCount
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, "SN/1", count.Serial)
	assert.Equal(t, "MGH100 RCU", count.Model)
	assert.Equal(t, 1, count.Count)

	rec, env = do(t, srv, http.MethodGet, "/api/perfiles/records/SN%2F1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.EventView
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "SN/1", history[0].Serial)
}

func TestLiteralPercentInSerial(t *testing.T) {
	srv := setupServer(t)

	rec, _ := do(t, srv, http.MethodPost, "/api/perfiles", register("50%", "FRHC", "BOT", "42A", "correct-pass"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, srv, http.MethodGet, "/api/perfiles/count/50%25/FRHC/BOT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count models.CombinationCount
	require.NoError(t, json.Unmarshal(env.Data, &count))
	assert.Equal(t, "50%", count.Serial)
	assert.Equal(t, 1, count.Count)
}

func TestRegisterErrorKinds(t *testing.T) {
	srv := setupServer(t)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantKind   string
	}{
		{"bad side", register("SN1", "MRR35", "top", "42", "correct-pass"), http.StatusBadRequest, registrations.KindValidation},
		{"missing secret", register("SN1", "MRR35", "TOP", "0042", ""), http.StatusUnauthorized, registrations.KindMissingSecret},
		{"wrong secret", register("SN1", "MRR35", "TOP", "42", "nope"), http.StatusUnauthorized, registrations.KindUnauthorized},
		{"unknown employee", register("SN1", "MRR35", "TOP", "99", "correct-pass"), http.StatusNotFound, registrations.KindCredentialNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, srv, http.MethodPost, "/api/perfiles", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.wantKind, env.Kind)
		})
	}

	_, env := do(t, srv, http.MethodPost, "/api/perfiles", register("SN1", "MRR35", "TOP", "0042", ""))
	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "42A", payload["normalized"])
}

func TestRegisterInvalidJSON(t *testing.T) {
	srv := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/perfiles", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), registrations.KindValidation)
}

func TestRegisterLimitReachedReturnsConflict(t *testing.T) {
	srv := setupServer(t)
	body := register("SN2", "FRHC", "BOT", "42", "correct-pass")

	for i := 0; i < models.RegistrationCeiling; i++ {
		rec, _ := do(t, srv, http.MethodPost, "/api/perfiles", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := do(t, srv, http.MethodPost, "/api/perfiles", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, registrations.KindLimitReached, env.Kind)

	var payload struct {
		CurrentCount int `json:"current_count"`
		Ceiling      int `json:"ceiling"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, 60, payload.CurrentCount)
	assert.Equal(t, 60, payload.Ceiling)

	_, env = do(t, srv, http.MethodGet, "/api/perfiles/stats/general", nil)
	var stats models.GeneralStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.InactiveCombinations)
}

func TestListHistoryAndAdmin(t *testing.T) {
	srv := setupServer(t)

	for _, serial := range []string{"SN3", "SN1", "SN2"} {
		rec, _ := do(t, srv, http.MethodPost, "/api/perfiles", register(serial, "MRR35", "TOP", "42", "correct-pass"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := do(t, srv, http.MethodGet, "/api/perfiles?page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.SerialPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Rows, 2)
	assert.Equal(t, "SN1", page.Rows[0].Serial)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Pages)

	_, env = do(t, srv, http.MethodGet, "/api/perfiles/records/SN1", nil)
	var history []models.EventView
	require.NoError(t, json.Unmarshal(env.Data, &history))
	require.Len(t, history, 1)
	id := history[0].ID

	path := fmt.Sprintf("/api/perfiles/%d", id)
	rec, env = do(t, srv, http.MethodPut, path, map[string]string{
		"serial": "SN1", "model": "FRHC", "side": "BOT", "employee_name": "Luis Pena",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.EventView
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "FRHC", updated.Model)

	rec, _ = do(t, srv, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, srv, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, registrations.KindEventNotFound, env.Kind)

	rec, env = do(t, srv, http.MethodGet, "/api/perfiles/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, registrations.KindValidation, env.Kind)
}

func TestLookupEmployee(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodPost, "/api/perfiles/employees/lookup", map[string]string{"employee": " 000042 "})
	require.Equal(t, http.StatusOK, rec.Code)
	var lookup models.EmployeeLookup
	require.NoError(t, json.Unmarshal(env.Data, &lookup))
	assert.True(t, lookup.Found)
	assert.Equal(t, "42A", lookup.NormalizedKey)
	assert.Equal(t, "Ana Torres", lookup.DisplayName)

	rec, env = do(t, srv, http.MethodPost, "/api/perfiles/employees/lookup", map[string]string{"employee": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, registrations.KindValidation, env.Kind)
}

func TestModelsAndBanner(t *testing.T) {
	srv := setupServer(t)

	rec, env := do(t, srv, http.MethodGet, "/api/perfiles/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Contains(t, body.Models, "MRR35")
	assert.Len(t, body.Models, len(models.ProductModels))

	rec, _ = do(t, srv, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(registration_api.RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/perfiles/models", nil)
	req.Header.Set(registration_api.RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(registration_api.RequestIDHeader))
}
