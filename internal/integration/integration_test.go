//go:build integration
// +build integration

package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/aet-hub/aet-hub/internal/api/http"
	"github.com/aet-hub/aet-hub/internal/application/auth"
	"github.com/aet-hub/aet-hub/internal/application/fleet"
	"github.com/aet-hub/aet-hub/internal/application/history"
	"github.com/aet-hub/aet-hub/internal/application/ledger"
	"github.com/aet-hub/aet-hub/internal/application/license"
	"github.com/aet-hub/aet-hub/internal/application/notification"
	"github.com/aet-hub/aet-hub/internal/application/transition"
	"github.com/aet-hub/aet-hub/internal/application/user"
	"github.com/aet-hub/aet-hub/internal/infrastructure/postgres"
	"github.com/aet-hub/aet-hub/internal/infrastructure/sse"
	"github.com/aet-hub/aet-hub/internal/infrastructure/storage"
)

const historyKeyHex = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
const bootstrapToken = "integration-token"
const testUsername = "alice"
const testPassword = "S3cure!Passw0rd"

func TestApprovalSyncsLedgerAndBlocksDuplicates(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	client := newAuthedClient(t, server.URL)
	licenseID, transporterID := seedRequest(t, client, server.URL, "11222333000181", "ABC1D23", "SP")

	statusURL := fmt.Sprintf("%s/v1/licenses/%d/states/SP/status", server.URL, licenseID)
	validUntil := time.Now().UTC().AddDate(0, 6, 0).Format("2006-01-02")
	for _, step := range []map[string]interface{}{
		{"status": "registration_in_progress"},
		{"status": "under_review", "aetNumber": "SP-001"},
		{"status": "pending_approval"},
		{"status": "approved", "issuedAt": time.Now().UTC().Format("2006-01-02"), "validUntil": validUntil},
	} {
		postJSON(t, client, statusURL, step, nil)
	}

	var issued struct {
		IssuedLicenses []map[string]interface{} `json:"issuedLicenses"`
	}
	getJSON(t, client, server.URL+"/v1/issued-licenses?aetNumber=SP-001", &issued)
	if len(issued.IssuedLicenses) != 1 || issued.IssuedLicenses[0]["status"] != "active" {
		t.Fatalf("unexpected ledger rows: %v", issued.IssuedLicenses)
	}

	other, _ := seedRequest(t, client, server.URL, "52998224725", "QWE4R56", "SP")
	otherURL := fmt.Sprintf("%s/v1/licenses/%d/states/SP/status", server.URL, other)
	postJSON(t, client, otherURL, map[string]interface{}{"status": "registration_in_progress"}, nil)
	status, body := postRaw(t, client, otherURL, map[string]interface{}{"status": "under_review", "aetNumber": "SP-001"})
	if status != http.StatusConflict || !strings.Contains(body, "DUPLICATE_PERMIT_NUMBER") {
		t.Fatalf("expected duplicate permit conflict, got %d: %s", status, body)
	}

	status, body = postRaw(t, client, server.URL+"/v1/licenses", map[string]interface{}{
		"transporterId": transporterID, "licenseType": "bitrem_9_eixos", "mainPlate": "ABC1D23",
		"length": 25, "width": 2.6, "height": 4.4, "states": []string{"SP"},
	})
	if status != http.StatusConflict || !strings.Contains(body, "CONFLICT_BLOCKED") {
		t.Fatalf("expected blocked request, got %d: %s", status, body)
	}

	var reconcile map[string]interface{}
	postJSON(t, client, server.URL+"/v1/issued-licenses/reconcile", nil, &reconcile)
	if _, ok := reconcile["errors"]; ok {
		t.Fatalf("reconcile reported errors: %v", reconcile)
	}
}

func TestSSEDeliveryIntegration(t *testing.T) {
	server, cleanup := newTestServer(t)
	defer cleanup()

	client := newAuthedClient(t, server.URL)
	licenseID, _ := seedRequest(t, client, server.URL, "11222333000181", "ABC1D23", "MG")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/events?clientId=test-client", nil)
	if err != nil {
		t.Fatalf("sse request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("sse connect: %v", err)
	}
	defer resp.Body.Close()

	msgCh := make(chan map[string]interface{}, 1)
	go func() {
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") {
				payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
				var msg map[string]interface{}
				if err := json.Unmarshal([]byte(payload), &msg); err == nil {
					msgCh <- msg
					return
				}
			}
		}
	}()

	statusURL := fmt.Sprintf("%s/v1/licenses/%d/states/MG/status", server.URL, licenseID)
	postJSON(t, client, statusURL, map[string]interface{}{"status": "registration_in_progress"}, nil)

	select {
	case msg := <-msgCh:
		if msg["type"] != "STATUS_UPDATE" {
			t.Fatalf("unexpected event: %v", msg["type"])
		}
		data, ok := msg["data"].(map[string]interface{})
		if !ok || data["state"] != "MG" || data["status"] != "registration_in_progress" {
			t.Fatalf("unexpected payload: %v", msg["data"])
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("SSE message not received")
	}
}

func seedRequest(t *testing.T, client *http.Client, baseURL, taxID, plate, state string) (licenseID, transporterID int64) {
	t.Helper()
	var tr struct {
		ID int64 `json:"id"`
	}
	postJSON(t, client, baseURL+"/v1/transporters", map[string]string{"name": "Carrier " + taxID, "taxId": taxID}, &tr)
	var v struct {
		ID int64 `json:"id"`
	}
	postJSON(t, client, baseURL+"/v1/vehicles", map[string]interface{}{
		"transporterId": tr.ID, "plate": plate, "type": "tractor_unit",
	}, &v)
	var l struct {
		ID int64 `json:"id"`
	}
	postJSON(t, client, baseURL+"/v1/licenses", map[string]interface{}{
		"transporterId": tr.ID,
		"licenseType":   "bitrem_9_eixos",
		"tractorUnitId": v.ID,
		"length":        25,
		"width":         2.6,
		"height":        4.4,
		"states":        []string{state},
	}, &l)
	return l.ID, tr.ID
}

func postRaw(t *testing.T, client *http.Client, url string, body interface{}) (int, string) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(out)
}

func postJSON(t *testing.T, client *http.Client, url string, body interface{}, out interface{}) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	doJSON(t, client, req, out)
}

func getJSON(t *testing.T, client *http.Client, url string, out interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	doJSON(t, client, req, out)
}

func doJSON(t *testing.T, client *http.Client, req *http.Request, out interface{}) {
	t.Helper()
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status %d: %s", req.Method, req.URL, resp.StatusCode, string(bodyBytes))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

// newAuthedClient bootstraps the first admin and keeps its session cookie.
func newAuthedClient(t *testing.T, baseURL string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Timeout: 10 * time.Second, Jar: jar}
	postJSON(t, client, baseURL+"/v1/auth/bootstrap", map[string]string{
		"token":    bootstrapToken,
		"username": testUsername,
		"password": testPassword,
	}, nil)
	return client
}

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	transporterRepo := postgres.NewTransporterRepository(pool)
	vehicleRepo := postgres.NewVehicleRepository(pool)
	licenseRepo := postgres.NewLicenseRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	historyRepo := postgres.NewHistoryRepository(pool)
	txManager := postgres.NewTxManager(pool)

	sseHub := sse.NewHub(nil)
	files, err := storage.NewLocalStore(t.TempDir(), "http://localhost")
	if err != nil {
		pool.Close()
		t.Fatalf("storage: %v", err)
	}

	publisher := notification.NewService(sseHub, logger)
	syncer := ledger.NewSyncer(ledgerRepo, vehicleRepo, logger)
	historySvc := history.NewService(historyRepo, logger, mustDecodeHex(t, historyKeyHex))
	reconciler, err := ledger.NewReconciler(ledger.ReconcilerParams{
		Licenses: licenseRepo,
		Ledger:   ledgerRepo,
		Syncer:   syncer,
		Logger:   logger,
	})
	if err != nil {
		pool.Close()
		t.Fatalf("reconciler: %v", err)
	}

	apiServer := httpapi.NewServer(httpapi.Deps{
		Auth:  auth.NewService(userRepo, sessionRepo, 24*time.Hour, bootstrapToken, logger),
		Users: user.NewService(userRepo, logger),
		Fleet: fleet.NewService(transporterRepo, vehicleRepo, logger),
		Licenses: license.NewService(license.Params{
			Repo:         licenseRepo,
			Tx:           txManager,
			Transporters: transporterRepo,
			Vehicles:     vehicleRepo,
			Conflicts:    ledger.NewConflictValidator(ledgerRepo, nil, nil, logger),
			Publisher:    publisher,
			Logger:       logger,
		}),
		Transitions: transition.NewService(transition.Params{
			Licenses:  licenseRepo,
			Tx:        txManager,
			History:   historySvc,
			Ledger:    syncer,
			Storage:   files,
			Publisher: publisher,
			Logger:    logger,
		}),
		History:           historySvc,
		Ledger:            ledger.NewService(ledgerRepo),
		Reconciler:        reconciler,
		Hub:               sseHub,
		SessionCookieName: "aet_session",
		Logger:            logger,
	})
	server := httptest.NewServer(apiServer.Router())

	cleanup := func() {
		server.Close()
		sseHub.Stop()
		pool.Close()
	}

	return server, cleanup
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			status_history,
			issued_licenses,
			license_requests,
			vehicles,
			transporters,
			sessions,
			users
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `ALTER SEQUENCE license_request_number_seq RESTART`)
	return err
}

func mustDecodeHex(t *testing.T, value string) []byte {
	t.Helper()
	b, err := hex.DecodeString(value)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	return b
}
