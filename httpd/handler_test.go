package httpd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	geogate "github.com/MrEthical07/goGeoGate"
	"github.com/MrEthical07/goGeoGate/geo"
)

type stubIdentity struct {
	mu       sync.Mutex
	accounts map[string]string // email -> credential
	nextID   int
	ids      map[string]string // email -> id
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{accounts: map[string]string{}, ids: map[string]string{}}
}

func (s *stubIdentity) CreateAccount(_ context.Context, email, _, credential string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[email]; ok {
		return "", geogate.ErrAccountExists
	}
	s.nextID++
	id := fmt.Sprintf("acct-%d", s.nextID)
	s.accounts[email] = credential
	s.ids[email] = id
	return id, nil
}

func (s *stubIdentity) VerifyCredential(_ context.Context, email, credential string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, ok := s.accounts[email]; !ok || cred != credential {
		return "", geogate.ErrInvalidCredentials
	}
	return s.ids[email], nil
}

type captureDelivery struct {
	mu    sync.Mutex
	codes []string
}

func (d *captureDelivery) Send(_ context.Context, _, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.codes = append(d.codes, code)
	return nil
}

func (d *captureDelivery) last(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.codes) == 0 {
		t.Fatal("no code delivered")
	}
	return d.codes[len(d.codes)-1]
}

type handlerEnv struct {
	echo     *echo.Echo
	delivery *captureDelivery
	provider *geo.StaticProvider
}

func newHandlerEnv(t *testing.T) (*handlerEnv, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := geogate.DefaultConfig()
	cfg.Audit.Enabled = false
	cfg.Policy.ToleranceMeters = 150_000

	env := &handlerEnv{
		delivery: &captureDelivery{},
		provider: &geo.StaticProvider{Coord: geo.Coordinate{
			Lat: 28.6139, Lon: 77.2090, AccuracyMeters: 5000, Source: geo.SourceIPGeo,
		}},
	}

	engine, err := geogate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(newStubIdentity()).
		WithOTPDelivery(env.delivery).
		WithGeoProviders(env.provider, nil).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	e := echo.New()
	New(engine, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(e)
	env.echo = e

	return env, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %v\n%s", err, rec.Body.String())
	}
	return out
}

func TestRegisterAndLoginRoutes(t *testing.T) {
	env, done := newHandlerEnv(t)
	defer done()

	rec := doJSON(env.echo, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","name":"Alice","credential":"secret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	reg := decodeAuth(t, rec)
	accountID, _ := reg["account_id"].(string)
	if accountID == "" {
		t.Fatalf("register response missing account_id: %v", reg)
	}

	rec = doJSON(env.echo, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","credential":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	login := decodeAuth(t, rec)
	if login["status"] != "ALLOW" {
		t.Fatalf("login status field = %v", login["status"])
	}

	rec = doJSON(env.echo, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","credential":"wrong"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credential status = %d", rec.Code)
	}

	rec = doJSON(env.echo, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","name":"Alice","credential":"secret"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d", rec.Code)
	}
}

func TestStepUpFlowOverHTTP(t *testing.T) {
	env, done := newHandlerEnv(t)
	defer done()

	rec := doJSON(env.echo, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","name":"Alice","credential":"secret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}

	// The next attempt appears ~1,150 km away; with a 150 km tolerance
	// that lands in the step-up band.
	env.provider.Coord = geo.Coordinate{Lat: 19.0760, Lon: 72.8777, Source: geo.SourceIPGeo}

	rec = doJSON(env.echo, http.MethodPost, "/auth/login",
		`{"email":"alice@example.com","credential":"secret"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("far login status = %d, body %s", rec.Code, rec.Body.String())
	}
	challenge := decodeAuth(t, rec)
	token, _ := challenge["step_up_token"].(string)
	if token == "" {
		t.Fatalf("missing step_up_token: %v", challenge)
	}
	if sent, _ := challenge["otp_sent_to"].(string); !strings.Contains(sent, "***") {
		t.Fatalf("otp_sent_to not masked: %q", sent)
	}

	rec = doJSON(env.echo, http.MethodPost, "/auth/verify-otp",
		fmt.Sprintf(`{"step_up_token":%q,"code":"000000"}`, token))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code status = %d", rec.Code)
	}

	rec = doJSON(env.echo, http.MethodPost, "/auth/verify-otp",
		fmt.Sprintf(`{"step_up_token":%q,"code":%q}`, token, env.delivery.last(t)))
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	verified := decodeAuth(t, rec)
	if verified["status"] != "ALLOW" {
		t.Fatalf("verify status field = %v", verified["status"])
	}
}

func TestSessionRoutes(t *testing.T) {
	env, done := newHandlerEnv(t)
	defer done()

	rec := doJSON(env.echo, http.MethodPost, "/auth/register",
		`{"email":"alice@example.com","name":"Alice","credential":"secret"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}
	accountID := decodeAuth(t, rec)["account_id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/auth/session/"+accountID, nil)
	sessionRec := httptest.NewRecorder()
	env.echo.ServeHTTP(sessionRec, req)
	if sessionRec.Code != http.StatusOK {
		t.Fatalf("session status = %d", sessionRec.Code)
	}
	var status sessionResponse
	if err := json.Unmarshal(sessionRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("session response not JSON: %v", err)
	}
	if !status.Valid || status.ExpiresAt == 0 {
		t.Fatalf("expected a valid session: %+v", status)
	}

	rec = doJSON(env.echo, http.MethodPost, "/auth/logout",
		fmt.Sprintf(`{"account_id":%q}`, accountID))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/session/"+accountID, nil)
	sessionRec = httptest.NewRecorder()
	env.echo.ServeHTTP(sessionRec, req)
	if sessionRec.Code != http.StatusOK {
		t.Fatalf("session status after logout = %d", sessionRec.Code)
	}
	if err := json.Unmarshal(sessionRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("session response not JSON: %v", err)
	}
	if status.Valid {
		t.Fatal("expected the session to be gone after logout")
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	env, done := newHandlerEnv(t)
	defer done()

	rec := doJSON(env.echo, http.MethodPost, "/auth/login", `{"email":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
}
