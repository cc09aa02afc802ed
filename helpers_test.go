package geogate

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGeoGate/geo"
)

var (
	locDelhi     = geo.Coordinate{Lat: 28.6139, Lon: 77.2090, Source: geo.SourceIPGeo}
	locDelhiNear = geo.Coordinate{Lat: 28.7, Lon: 77.1, Source: geo.SourceIPGeo}
	locMumbai    = geo.Coordinate{Lat: 19.0760, Lon: 72.8777, Source: geo.SourceIPGeo}
	locChennai   = geo.Coordinate{Lat: 13.0827, Lon: 80.2707, Source: geo.SourceIPGeo}
)

type fakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount
	nextID   int
}

type fakeAccount struct {
	id         string
	credential string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{accounts: map[string]fakeAccount{}}
}

func (f *fakeIdentity) CreateAccount(_ context.Context, email, _, credential string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[email]; ok {
		return "", ErrAccountExists
	}
	f.nextID++
	id := fmt.Sprintf("acct-%d", f.nextID)
	f.accounts[email] = fakeAccount{id: id, credential: credential}
	return id, nil
}

func (f *fakeIdentity) VerifyCredential(_ context.Context, email, credential string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acct, ok := f.accounts[email]
	if !ok || acct.credential != credential {
		return "", ErrInvalidCredentials
	}
	return acct.id, nil
}

type recordingDelivery struct {
	mu    sync.Mutex
	codes []string
	dests []string
	fail  error
}

func (d *recordingDelivery) Send(_ context.Context, destination, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail != nil {
		return d.fail
	}
	d.dests = append(d.dests, destination)
	d.codes = append(d.codes, code)
	return nil
}

func (d *recordingDelivery) lastCode(t *testing.T) string {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.codes) == 0 {
		t.Fatal("expected at least one delivered code")
	}
	return d.codes[len(d.codes)-1]
}

func (d *recordingDelivery) sendCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.codes)
}

type testEnv struct {
	engine   *Engine
	rdb      *redis.Client
	mr       *miniredis.Miniredis
	identity *fakeIdentity
	delivery *recordingDelivery
	provider *geo.StaticProvider
}

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*testEnv, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &testEnv{
		rdb:      rdb,
		mr:       mr,
		identity: newFakeIdentity(),
		delivery: &recordingDelivery{},
		provider: &geo.StaticProvider{Coord: locDelhi},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(env.identity).
		WithOTPDelivery(env.delivery).
		WithGeoProviders(env.provider, nil).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	env.engine = engine

	return env, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func registerTestAccount(t *testing.T, env *testEnv, email string) string {
	t.Helper()

	result, err := env.engine.Register(context.Background(), email, "Test User", "correct-horse-battery", nil)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if result.Account == nil || result.Account.AccountID == "" {
		t.Fatal("expected account in register result")
	}
	return result.Account.AccountID
}
