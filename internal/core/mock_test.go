package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/storage"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

// ---------- Mock Renderer ----------

type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Render(ctx context.Context, req model.CertificateRequest) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var fakePDF = []byte("%PDF-1.3 fake certificate")

func newMockRenderer() *mockRenderer {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.Anything).Return(fakePDF, nil)
	return r
}

// ---------- Fake storage ----------

// flakyStorage fails the first putFailures Put calls with putErr.
type flakyStorage struct {
	storage.Backend

	mu          sync.Mutex
	putFailures int
	putCalls    int
	putErr      error
	statErr     error
}

func (f *flakyStorage) Put(ctx context.Context, key string, data []byte, meta storage.Metadata) (string, error) {
	f.mu.Lock()
	f.putCalls++
	fail := f.putCalls <= f.putFailures
	f.mu.Unlock()
	if fail {
		return "", f.putErr
	}
	return f.Backend.Put(ctx, key, data, meta)
}

func (f *flakyStorage) Stat(ctx context.Context, ref string) (*storage.ObjectInfo, error) {
	if f.statErr != nil {
		return nil, f.statErr
	}
	return f.Backend.Stat(ctx, ref)
}

func (f *flakyStorage) Exists(ctx context.Context, ref string) (bool, error) {
	if f.statErr != nil {
		return false, f.statErr
	}
	return f.Backend.Exists(ctx, ref)
}

// ---------- Fake cache ----------

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("connection refused")

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errCacheDown }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (brokenCache) Delete(context.Context, string) error { return errCacheDown }
func (brokenCache) Ping(context.Context) error           { return errCacheDown }
func (brokenCache) Name() string                         { return "broken" }

// ---------- Test environment ----------

type testEnv struct {
	local    *storage.Local
	storage  *flakyStorage
	cache    cache.Cache
	renderer *mockRenderer
	svc      *CertificateService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithCache(t, cache.NewMemory(100))
}

func newTestEnvWithCache(t *testing.T, c cache.Cache) *testEnv {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		local:    local,
		storage:  &flakyStorage{Backend: local},
		cache:    c,
		renderer: newMockRenderer(),
	}
	env.svc = NewCertificateService(env.storage, c, env.renderer, Options{
		CacheTTL:       time.Hour,
		CacheTimeout:   time.Second,
		StorageTimeout: 5 * time.Second,
		PresignExpiry:  15 * time.Minute,
		VerifyURL:      "https://certs.example.com/verify",
		ServiceName:    "certificate-generation-service",
	}, zerolog.Nop(), nil)
	return env
}

func courseRequest(id, title string) model.CertificateRequest {
	return model.CertificateRequest{
		UserName:        "Ada Lovelace",
		UserEmail:       "ada@example.com",
		CertificateType: model.CertTypeCourse,
		Title:           title,
		CertificateID:   id,
	}
}
