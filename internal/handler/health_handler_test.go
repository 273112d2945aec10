package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kathanshah86/battle-mitra-hub-sub000/internal/testutil"
)

type stubBroker struct{ closed bool }

func (b stubBroker) IsClosed() bool { return b.closed }

type stubCache struct{ err error }

func (c stubCache) Ping(ctx context.Context) error { return c.err }

type readyResponse struct {
	Status string                       `json:"status"`
	Checks map[string]HealthCheckResult `json:"checks"`
}

func TestHealth_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	Health(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	testutil.AssertHeader(t, w, "Content-Type", "application/json")

	var response map[string]string
	err := json.NewDecoder(w.Body).Decode(&response)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, response["status"], "ok")
}

func TestHealthCheckResult_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(HealthCheckResult{Status: "up"})
	testutil.AssertNoError(t, err)

	jsonStr := string(data)
	testutil.AssertNotContains(t, jsonStr, "latency_ms")
	testutil.AssertNotContains(t, jsonStr, "error")
	testutil.AssertNotContains(t, jsonStr, "metadata")
}

func TestReady_AllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	testutil.AssertNoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	Ready(db, stubBroker{}, stubCache{})(w, req)

	testutil.AssertStatusCode(t, w, http.StatusOK)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	testutil.AssertEqual(t, resp.Status, "ready")
	testutil.AssertEqual(t, resp.Checks["database"].Status, "up")
	testutil.AssertEqual(t, resp.Checks["rabbitmq"].Status, "up")
	testutil.AssertEqual(t, resp.Checks["redis"].Status, "up")
	testutil.AssertNoError(t, mock.ExpectationsWereMet())
}

func TestReady_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	testutil.AssertNoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	Ready(db, nil, nil)(w, req)

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	testutil.AssertEqual(t, resp.Status, "not_ready")
	testutil.AssertEqual(t, resp.Checks["database"].Error, "connection refused")

	// unconfigured dependencies are left out
	_, hasBroker := resp.Checks["rabbitmq"]
	_, hasCache := resp.Checks["redis"]
	testutil.AssertFalse(t, hasBroker, "broker check should be omitted")
	testutil.AssertFalse(t, hasCache, "cache check should be omitted")
}

func TestReady_BrokerClosed(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	testutil.AssertNoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	Ready(db, stubBroker{closed: true}, nil)(w, req)

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	testutil.AssertEqual(t, resp.Checks["rabbitmq"].Status, "down")
	testutil.AssertEqual(t, resp.Checks["database"].Status, "up")
}

func TestReady_CacheDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	testutil.AssertNoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	Ready(db, nil, stubCache{err: errors.New("dial tcp: connection refused")})(w, req)

	testutil.AssertStatusCode(t, w, http.StatusServiceUnavailable)
	resp := testutil.DecodeJSON[readyResponse](t, w)
	testutil.AssertEqual(t, resp.Checks["redis"].Status, "down")
	testutil.AssertContains(t, resp.Checks["redis"].Error, "connection refused")
}

// Benchmark health endpoint
func BenchmarkHealth(b *testing.B) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		Health(w, req)
	}
}
