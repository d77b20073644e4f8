package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/storage"
)

func TestCertificateService_GenerateCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Generate(ctx, model.CertificateRequest{
		CertificateID:   "CERT-1",
		CertificateType: model.CertTypeCourse,
		Title:           "X",
	})
	require.NoError(t, err)
	assert.Equal(t, "CERT-1", rec.CertificateID)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.NotEmpty(t, rec.StorageRef)
	assert.NotNil(t, rec.CompletedAt)
	assert.Nil(t, rec.Error)

	status, err := env.svc.GetStatus(ctx, "CERT-1")
	require.NoError(t, err)
	assert.Equal(t, rec, status)

	data, err := env.local.Get(ctx, rec.StorageRef)
	require.NoError(t, err)
	assert.Equal(t, fakePDF, data)
}

func TestCertificateService_GenerateAssignsIDAndIssueDate(t *testing.T) {
	env := newTestEnv(t)
	env.svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	rec, err := env.svc.Generate(context.Background(), courseRequest("", "Rust Basics"))
	require.NoError(t, err)
	assert.Regexp(t, `^CERT-20250601-[0-9A-F]{8}$`, rec.CertificateID)

	rendered := env.renderer.Calls[0].Arguments.Get(1).(model.CertificateRequest)
	assert.Equal(t, rec.CertificateID, rendered.CertificateID)
	require.NotNil(t, rendered.IssuedDate)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), *rendered.IssuedDate)
}

func TestCertificateService_GenerateIsIdempotentOnID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, courseRequest("CERT-IDEM", "First"))
	require.NoError(t, err)
	second, err := env.svc.Generate(ctx, courseRequest("CERT-IDEM", "Different content"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	env.renderer.AssertNumberOfCalls(t, "Render", 1)
}

func TestCertificateService_IdempotentAfterCacheExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, courseRequest("CERT-EXP", "T"))
	require.NoError(t, err)
	require.NoError(t, env.cache.Delete(ctx, cache.CertificateKey("CERT-EXP")))

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-EXP", "T"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	env.renderer.AssertNumberOfCalls(t, "Render", 1)
}

func TestCertificateService_RegeneratesWhenArtifactMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-GONE", "T"))
	require.NoError(t, err)
	require.NoError(t, env.local.Delete(ctx, rec.StorageRef))

	again, err := env.svc.Generate(ctx, courseRequest("CERT-GONE", "T"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, again.Status)
	env.renderer.AssertNumberOfCalls(t, "Render", 2)

	ok, err := env.local.Exists(ctx, again.StorageRef)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCertificateService_Regenerate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, courseRequest("CERT-RE", "T"))
	require.NoError(t, err)
	rec, err := env.svc.Regenerate(ctx, courseRequest("CERT-RE", "T2"))
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, rec.Status)
	env.renderer.AssertNumberOfCalls(t, "Render", 2)
}

func TestCertificateService_FailedRegenerateKeepsPrevious(t *testing.T) {
	tests := []struct {
		name  string
		setup func(env *testEnv)
		kind  string
	}{
		{
			name: "render",
			setup: func(env *testEnv) {
				env.renderer = &mockRenderer{}
				env.renderer.On("Render", mock.Anything, mock.Anything).Return(nil, errors.New("template missing"))
				env.svc.renderer = env.renderer
			},
			kind: KindRender,
		},
		{
			name: "storage",
			setup: func(env *testEnv) {
				env.storage.putFailures = 2
				env.storage.putErr = errors.New("bucket gone")
			},
			kind: KindStorage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rs := &memoryRecordStore{records: map[string]*model.CertificateRecord{}}
			env.svc.WithRecordStore(rs)
			ctx := context.Background()

			first, err := env.svc.Generate(ctx, courseRequest("CERT-KEEP", "T"))
			require.NoError(t, err)
			tt.setup(env)

			rec, err := env.svc.Regenerate(ctx, courseRequest("CERT-KEEP", "T2"))
			var genErr *GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, tt.kind, genErr.Kind)
			assert.Equal(t, first, rec)

			status, err := env.svc.GetStatus(ctx, "CERT-KEEP")
			require.NoError(t, err)
			assert.Equal(t, model.StatusCompleted, status.Status)

			data, err := env.svc.Download(ctx, "CERT-KEEP")
			require.NoError(t, err)
			assert.Equal(t, fakePDF, data)

			_, err = env.svc.Verify(ctx, "CERT-KEEP")
			require.NoError(t, err)

			assert.Equal(t, []model.RecordStatus{model.StatusPending, model.StatusGenerating, model.StatusCompleted}, rs.history["CERT-KEEP"])
		})
	}
}

func TestCertificateService_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec, err := env.svc.Generate(context.Background(), model.CertificateRequest{
		CertificateType: "diploma",
		Title:           "   ",
		UserEmail:       "not-an-email",
	})
	assert.Nil(t, rec)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["certificate_type"])
	assert.True(t, fields["title"])
	assert.True(t, fields["user_email"])
	env.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestCertificateService_RenderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.renderer = &mockRenderer{}
	env.renderer.On("Render", mock.Anything, mock.Anything).Return(nil, errors.New("unknown certificate type"))
	env.svc.renderer = env.renderer
	ctx := context.Background()

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-R", "T"))
	require.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, KindRender, rec.ErrorKind)
	require.NotNil(t, rec.Error)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	var renderErr *RenderError
	assert.ErrorAs(t, err, &renderErr)

	status, err := env.svc.GetStatus(ctx, "CERT-R")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status.Status)
	assert.Equal(t, *rec.Error, *status.Error)
}

func TestCertificateService_FailedIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.storage.putFailures = 1
	env.storage.putErr = errors.New("disk full")
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, courseRequest("CERT-F", "T"))
	require.Error(t, err)

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-F", "T"))
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, KindStorage, genErr.Kind)
	env.renderer.AssertNumberOfCalls(t, "Render", 1)

	rec, err = env.svc.Regenerate(ctx, courseRequest("CERT-F", "T"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
}

func TestCertificateService_StorageRetriesWithinBudget(t *testing.T) {
	env := newTestEnv(t)
	env.storage.putFailures = 2
	env.storage.putErr = errors.New("connection reset")
	env.svc.storage = storage.WithRetry(env.storage, storage.RetryOptions{MaxRetries: 2, Base: time.Millisecond})

	rec, err := env.svc.Generate(context.Background(), courseRequest("CERT-RT", "T"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, 3, env.storage.putCalls)
}

func TestCertificateService_StorageFailsBeyondBudget(t *testing.T) {
	env := newTestEnv(t)
	cause := errors.New("connection reset")
	env.storage.putFailures = 3
	env.storage.putErr = cause
	env.svc.storage = storage.WithRetry(env.storage, storage.RetryOptions{MaxRetries: 2, Base: time.Millisecond})

	rec, err := env.svc.Generate(context.Background(), courseRequest("CERT-SF", "T"))
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, KindStorage, rec.ErrorKind)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "put", storageErr.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, env.storage.putCalls)
}

func TestCertificateService_GetStatusNotFound(t *testing.T) {
	env := newTestEnv(t)

	for _, id := range []string{"CERT-UNKNOWN", "../etc/passwd", ""} {
		_, err := env.svc.GetStatus(context.Background(), id)
		var nf *NotFoundError
		assert.ErrorAs(t, err, &nf, id)
	}
}

func TestCertificateService_GetStatusFromStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-S", "T"))
	require.NoError(t, err)
	require.NoError(t, env.cache.Delete(ctx, cache.CertificateKey("CERT-S")))

	status, err := env.svc.GetStatus(ctx, "CERT-S")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
	assert.Equal(t, rec.StorageRef, status.StorageRef)
	assert.Equal(t, model.CertTypeCourse, status.CertificateType)

	// The reconstructed record is written back to the cache.
	_, ok, err := env.cache.Get(ctx, cache.CertificateKey("CERT-S"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCertificateService_GetStatusStorageError(t *testing.T) {
	env := newTestEnv(t)
	env.storage.statErr = errors.New("timeout")

	_, err := env.svc.GetStatus(context.Background(), "CERT-X")
	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestCertificateService_CacheOutageDegradesToMiss(t *testing.T) {
	env := newTestEnvWithCache(t, brokenCache{})
	ctx := context.Background()

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-C", "T"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)

	status, err := env.svc.GetStatus(ctx, "CERT-C")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)

	_, err = env.svc.Generate(ctx, courseRequest("CERT-C", "T"))
	require.NoError(t, err)
	env.renderer.AssertNumberOfCalls(t, "Render", 1)
}

func TestCertificateService_CallerCancellationDoesNotAbortWork(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := env.svc.Generate(ctx, courseRequest("CERT-CANCEL", "T"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
}

func TestCertificateService_Verify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issued := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	req := courseRequest("CERT-V", "Rust Basics")
	req.Description = "Ownership and borrowing"
	req.ItemsCompleted = []string{"Ownership", "Borrowing"}
	req.IssuedDate = &issued
	_, err := env.svc.Generate(ctx, req)
	require.NoError(t, err)

	v, err := env.svc.Verify(ctx, "CERT-V")
	require.NoError(t, err)
	assert.Equal(t, "CERT-V", v.CertificateID)
	assert.Equal(t, "Ada Lovelace", v.UserName)
	assert.Equal(t, "ada@example.com", v.UserEmail)
	assert.Equal(t, model.CertTypeCourse, v.CertificateType)
	assert.Equal(t, "Rust Basics", v.Title)
	assert.Equal(t, "Ownership and borrowing", v.Description)
	assert.Equal(t, []string{"Ownership", "Borrowing"}, v.ItemsCompleted)
	assert.Equal(t, issued, v.IssuedDate)
	assert.Equal(t, "https://certs.example.com/verify/CERT-V", v.VerificationURL)
	assert.Contains(t, v.DownloadURL, "file://")
}

func TestCertificateService_VerifyNotIssued(t *testing.T) {
	env := newTestEnv(t)
	env.storage.putFailures = 1
	env.storage.putErr = errors.New("boom")
	ctx := context.Background()

	_, _ = env.svc.Generate(ctx, courseRequest("CERT-NV", "T"))

	_, err := env.svc.Verify(ctx, "CERT-NV")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCertificateService_DownloadURLAndDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Generate(ctx, courseRequest("CERT-D", "T"))
	require.NoError(t, err)

	link, err := env.svc.DownloadURL(ctx, "CERT-D")
	require.NoError(t, err)
	assert.Equal(t, "CERT-D", link.CertificateID)
	assert.Equal(t, 900, link.ExpiresIn)
	assert.Contains(t, link.DownloadURL, "certificates/CERT-D.pdf")

	data, err := env.svc.Download(ctx, "CERT-D")
	require.NoError(t, err)
	assert.Equal(t, fakePDF, data)

	_, err = env.svc.Download(ctx, "CERT-NONE")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCertificateService_RecordStoreFallback(t *testing.T) {
	env := newTestEnv(t)
	completed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	stored := &model.CertificateRecord{
		CertificateID:   "CERT-DB",
		Status:          model.StatusCompleted,
		CertificateType: model.CertTypeAchievement,
		StorageRef:      "/somewhere/CERT-DB.pdf",
		CreatedAt:       completed,
		UpdatedAt:       completed,
		CompletedAt:     &completed,
	}
	env.svc.WithRecordStore(&memoryRecordStore{records: map[string]*model.CertificateRecord{"CERT-DB": stored}})

	rec, err := env.svc.GetStatus(context.Background(), "CERT-DB")
	require.NoError(t, err)
	assert.Equal(t, stored, rec)
}

func TestCertificateService_RecordStoreReceivesTransitions(t *testing.T) {
	env := newTestEnv(t)
	rs := &memoryRecordStore{records: map[string]*model.CertificateRecord{}}
	env.svc.WithRecordStore(rs)

	_, err := env.svc.Generate(context.Background(), courseRequest("CERT-T", "T"))
	require.NoError(t, err)

	assert.Equal(t, []model.RecordStatus{model.StatusPending, model.StatusGenerating, model.StatusCompleted}, rs.history["CERT-T"])
}

type memoryRecordStore struct {
	records map[string]*model.CertificateRecord
	history map[string][]model.RecordStatus
}

func (m *memoryRecordStore) Save(_ context.Context, rec *model.CertificateRecord) error {
	if m.history == nil {
		m.history = map[string][]model.RecordStatus{}
	}
	cp := *rec
	m.records[rec.CertificateID] = &cp
	m.history[rec.CertificateID] = append(m.history[rec.CertificateID], rec.Status)
	return nil
}

func (m *memoryRecordStore) Get(_ context.Context, id string) (*model.CertificateRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryRecordStore) Ping(context.Context) error { return nil }
