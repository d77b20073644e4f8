package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/metrics"
	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/platform"
	"github.com/edvin/certgen/internal/render"
	"github.com/edvin/certgen/internal/storage"
)

// Options tunes the certificate orchestrator.
type Options struct {
	CacheTTL time.Duration
	// CacheTimeout bounds each cache and record store call.
	CacheTimeout time.Duration
	// StorageTimeout bounds each storage call including its retries.
	StorageTimeout time.Duration
	PresignExpiry  time.Duration
	VerifyURL      string
	ServiceName    string
}

// CertificateService orchestrates certificate generation: validate, render,
// store, record status. The cache and the optional record store hold copies
// of each record; storage is the source of truth for artifact existence.
type CertificateService struct {
	storage  storage.Backend
	cache    cache.Cache
	renderer render.Renderer
	records  RecordStore
	metrics  *metrics.Recorder
	logger   zerolog.Logger
	opts     Options
	now      func() time.Time
}

func NewCertificateService(store storage.Backend, c cache.Cache, r render.Renderer, opts Options, logger zerolog.Logger, m *metrics.Recorder) *CertificateService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = time.Hour
	}
	return &CertificateService{
		storage:  store,
		cache:    c,
		renderer: r,
		metrics:  m,
		logger:   logger.With().Str("component", "certificates").Logger(),
		opts:     opts,
		now:      time.Now,
	}
}

// WithRecordStore enables durable record keeping.
func (s *CertificateService) WithRecordStore(rs RecordStore) *CertificateService {
	s.records = rs
	return s
}

// Generate returns the COMPLETED record for the request's certificate id,
// rendering and storing the artifact only when none exists yet. A FAILED
// record for the id is returned with its GenerationError.
func (s *CertificateService) Generate(ctx context.Context, req model.CertificateRequest) (*model.CertificateRecord, error) {
	return s.generate(ctx, req, false)
}

// Regenerate renders and stores the certificate even if it already exists.
// The previous artifact stays readable until the new one replaces it; when
// regeneration fails the previous record is returned with the error.
func (s *CertificateService) Regenerate(ctx context.Context, req model.CertificateRequest) (*model.CertificateRecord, error) {
	return s.generate(ctx, req, true)
}

func (s *CertificateService) generate(ctx context.Context, req model.CertificateRequest, force bool) (*model.CertificateRecord, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	// The request is accepted; a client disconnect must not abort the work.
	ctx = context.WithoutCancel(ctx)

	req = s.normalize(req)
	log := s.logger.With().Str("certificate_id", req.CertificateID).Logger()

	existing := s.existing(ctx, req.CertificateID, log)
	if !force && existing != nil {
		if existing.Status == model.StatusFailed {
			return existing, failedError(existing)
		}
		log.Debug().Msg("certificate already generated")
		return existing, nil
	}
	var previous *model.CertificateRecord
	if existing != nil && existing.Status == model.StatusCompleted {
		previous = existing
	}
	return s.run(ctx, req, previous, log)
}

// normalize assigns the id and issue date at acceptance time.
func (s *CertificateService) normalize(req model.CertificateRequest) model.CertificateRequest {
	now := s.now().UTC()
	if req.CertificateID == "" {
		req.CertificateID = platform.NewCertificateID(now)
	}
	if req.IssuedDate == nil {
		issued := now.Truncate(time.Second)
		req.IssuedDate = &issued
	}
	return req
}

// existing returns a COMPLETED record whose artifact is present, a FAILED
// record, or nil when the certificate must be generated.
func (s *CertificateService) existing(ctx context.Context, id string, log zerolog.Logger) *model.CertificateRecord {
	rec := s.lookupRecord(ctx, id)
	if rec != nil {
		switch rec.Status {
		case model.StatusFailed:
			return rec
		case model.StatusCompleted:
			ok, err := s.exists(ctx, rec.StorageRef)
			if err != nil {
				log.Warn().Err(err).Msg("storage unavailable; trusting recorded certificate")
				return rec
			}
			if ok {
				return rec
			}
			log.Info().Str("storage_ref", rec.StorageRef).Msg("recorded artifact is missing; regenerating")
			return nil
		}
	}

	rec, err := s.fromStorage(ctx, id)
	if err != nil {
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			log.Warn().Err(err).Msg("storage lookup failed")
		}
		return nil
	}
	return rec
}

// run renders and stores the artifact. When previous is a COMPLETED record
// being replaced, it stays the visible record until the new artifact is
// stored, and a failure leaves it in place.
func (s *CertificateService) run(ctx context.Context, req model.CertificateRequest, previous *model.CertificateRecord, log zerolog.Logger) (*model.CertificateRecord, error) {
	key, err := storage.CertificateKey(req.CertificateID)
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "certificate_id", Message: err.Error()}}}
	}

	accepted := s.now().UTC()
	rec := &model.CertificateRecord{
		CertificateID:   req.CertificateID,
		Status:          model.StatusPending,
		CertificateType: req.CertificateType,
		CreatedAt:       accepted,
		UpdatedAt:       accepted,
	}
	if previous == nil {
		s.saveRecord(ctx, rec)
	}

	rec.Status = model.StatusGenerating
	rec.UpdatedAt = s.now().UTC()
	if previous == nil {
		s.saveRecord(ctx, rec)
	}

	start := s.now()
	data, err := s.renderer.Render(ctx, req)
	if err != nil {
		return s.fail(ctx, rec, previous, KindRender, &RenderError{CertificateID: req.CertificateID, Err: err}, log)
	}

	ref, err := s.put(ctx, key, data, s.artifactMetadata(req, accepted))
	if err != nil {
		return s.fail(ctx, rec, previous, KindStorage, &StorageError{Op: "put", Ref: key, Err: err}, log)
	}

	done := s.now().UTC()
	rec.Status = model.StatusCompleted
	rec.StorageRef = ref
	rec.CompletedAt = &done
	rec.UpdatedAt = done
	rec.Error = nil
	rec.ErrorKind = ""
	s.saveRecord(ctx, rec)

	elapsed := s.now().Sub(start)
	s.metrics.CertificateGenerated(string(req.CertificateType), elapsed)
	log.Info().
		Str("certificate_type", string(req.CertificateType)).
		Str("storage_ref", ref).
		Int("bytes", len(data)).
		Dur("duration", elapsed).
		Msg("certificate generated")
	return rec, nil
}

func (s *CertificateService) fail(ctx context.Context, rec, previous *model.CertificateRecord, kind string, cause error, log zerolog.Logger) (*model.CertificateRecord, error) {
	genErr := &GenerationError{CertificateID: rec.CertificateID, Kind: kind, Err: cause}
	s.metrics.GenerationFailed(string(rec.CertificateType), kind)
	if previous != nil {
		log.Error().Err(cause).Str("kind", kind).Msg("regeneration failed; keeping previous certificate")
		return previous, genErr
	}

	msg := cause.Error()
	rec.Status = model.StatusFailed
	rec.Error = &msg
	rec.ErrorKind = kind
	rec.CompletedAt = nil
	rec.UpdatedAt = s.now().UTC()
	s.saveRecord(ctx, rec)

	log.Error().Err(cause).Str("kind", kind).Msg("certificate generation failed")
	return rec, genErr
}

// recordRejected stores the FAILED record of a batch item under its
// certificate id so the id resolves like any other. A COMPLETED or FAILED
// record already held for the id is left alone.
func (s *CertificateService) recordRejected(ctx context.Context, rec *model.CertificateRecord) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With().Str("certificate_id", rec.CertificateID).Logger()
	if s.existing(ctx, rec.CertificateID, log) != nil {
		return
	}
	s.saveRecord(ctx, rec)
}

// failedError rebuilds the error for a previously recorded failure.
func failedError(rec *model.CertificateRecord) error {
	msg := "generation failed"
	if rec.Error != nil {
		msg = *rec.Error
	}
	return &GenerationError{CertificateID: rec.CertificateID, Kind: rec.ErrorKind, Err: errors.New(msg)}
}

// GetStatus resolves a record from the cache, then the record store, then
// storage. An artifact found only in storage yields a COMPLETED record.
func (s *CertificateService) GetStatus(ctx context.Context, id string) (*model.CertificateRecord, error) {
	if !storage.ValidCertificateID(id) {
		return nil, &NotFoundError{Kind: "certificate", ID: id}
	}
	if rec := s.lookupRecord(ctx, id); rec != nil {
		return rec, nil
	}
	return s.fromStorage(ctx, id)
}

// Verify returns the public details of an issued certificate.
func (s *CertificateService) Verify(ctx context.Context, id string) (*model.CertificateVerification, error) {
	rec, err := s.completed(ctx, id)
	if err != nil {
		return nil, err
	}
	info, err := s.stat(ctx, rec.StorageRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Kind: "certificate", ID: id}
		}
		return nil, &StorageError{Op: "stat", Ref: rec.StorageRef, Err: err}
	}

	v := verificationFromMetadata(id, info)
	v.VerificationURL = render.VerificationURL(s.opts.VerifyURL, id)
	if u, err := s.url(ctx, rec.StorageRef); err != nil {
		s.logger.Warn().Err(err).Str("certificate_id", id).Msg("download url unavailable")
	} else {
		v.DownloadURL = u
	}
	return v, nil
}

// DownloadURL returns a fresh, time-limited URL for a COMPLETED certificate.
func (s *CertificateService) DownloadURL(ctx context.Context, id string) (*model.DownloadLink, error) {
	rec, err := s.completed(ctx, id)
	if err != nil {
		return nil, err
	}
	u, err := s.url(ctx, rec.StorageRef)
	if err != nil {
		return nil, &StorageError{Op: "url", Ref: rec.StorageRef, Err: err}
	}
	return &model.DownloadLink{
		CertificateID: id,
		DownloadURL:   u,
		ExpiresIn:     int(s.opts.PresignExpiry.Seconds()),
		GeneratedAt:   s.now().UTC(),
	}, nil
}

// Download returns the stored PDF of a COMPLETED certificate.
func (s *CertificateService) Download(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.completed(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.get(ctx, rec.StorageRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Kind: "certificate", ID: id}
		}
		return nil, &StorageError{Op: "get", Ref: rec.StorageRef, Err: err}
	}
	return data, nil
}

func (s *CertificateService) completed(ctx context.Context, id string) (*model.CertificateRecord, error) {
	rec, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.StatusCompleted {
		return nil, &NotFoundError{Kind: "certificate", ID: id}
	}
	return rec, nil
}

// fromStorage reconstructs a COMPLETED record from a stored artifact and
// writes it back to the cache.
func (s *CertificateService) fromStorage(ctx context.Context, id string) (*model.CertificateRecord, error) {
	key, err := storage.CertificateKey(id)
	if err != nil {
		return nil, &NotFoundError{Kind: "certificate", ID: id}
	}
	ref := s.storage.Reference(key)
	info, err := s.stat(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NotFoundError{Kind: "certificate", ID: id}
		}
		return nil, &StorageError{Op: "stat", Ref: ref, Err: err}
	}

	rec := recordFromInfo(id, info)
	s.saveRecord(ctx, rec)
	return rec, nil
}

// lookupRecord consults the cache, then the record store. Failures of
// either count as a miss.
func (s *CertificateService) lookupRecord(ctx context.Context, id string) *model.CertificateRecord {
	key := cache.CertificateKey(id)
	if raw, ok := s.cacheGet(ctx, key); ok {
		var rec model.CertificateRecord
		err := json.Unmarshal(raw, &rec)
		if err == nil {
			s.metrics.CacheLookup(true)
			return &rec
		}
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
	}
	s.metrics.CacheLookup(false)

	if s.records == nil {
		return nil
	}
	rctx, cancel := s.cacheCtx(ctx)
	defer cancel()
	rec, err := s.records.Get(rctx, id)
	if err != nil {
		s.metrics.CacheError("store_get")
		s.logger.Warn().Err(err).Str("certificate_id", id).Msg("record store lookup failed")
		return nil
	}
	if rec != nil {
		s.cacheRecord(ctx, rec)
	}
	return rec
}

// saveRecord writes rec to the cache and the record store.
func (s *CertificateService) saveRecord(ctx context.Context, rec *model.CertificateRecord) {
	s.cacheRecord(ctx, rec)
	if s.records == nil {
		return
	}
	rctx, cancel := s.cacheCtx(ctx)
	defer cancel()
	if err := s.records.Save(rctx, rec); err != nil {
		s.metrics.CacheError("store_save")
		s.logger.Warn().Err(err).Str("certificate_id", rec.CertificateID).Msg("record store write failed")
	}
}

func (s *CertificateService) cacheRecord(ctx context.Context, rec *model.CertificateRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error().Err(err).Str("certificate_id", rec.CertificateID).Msg("encode certificate record")
		return
	}
	s.cacheSet(ctx, cache.CertificateKey(rec.CertificateID), raw, s.opts.CacheTTL)
}

func (s *CertificateService) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	cctx, cancel := s.cacheCtx(ctx)
	defer cancel()
	raw, ok, err := s.cache.Get(cctx, key)
	if err != nil {
		s.metrics.CacheError("get")
		s.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return nil, false
	}
	return raw, ok
}

func (s *CertificateService) cacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	cctx, cancel := s.cacheCtx(ctx)
	defer cancel()
	if err := s.cache.Set(cctx, key, value, ttl); err != nil {
		s.metrics.CacheError("set")
		s.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (s *CertificateService) cacheCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, s.opts.CacheTimeout)
}

func (s *CertificateService) put(ctx context.Context, key string, data []byte, meta storage.Metadata) (string, error) {
	sctx, cancel := withTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()
	return s.storage.Put(sctx, key, data, meta)
}

func (s *CertificateService) get(ctx context.Context, ref string) ([]byte, error) {
	sctx, cancel := withTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()
	return s.storage.Get(sctx, ref)
}

func (s *CertificateService) exists(ctx context.Context, ref string) (bool, error) {
	sctx, cancel := withTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()
	return s.storage.Exists(sctx, ref)
}

func (s *CertificateService) stat(ctx context.Context, ref string) (*storage.ObjectInfo, error) {
	sctx, cancel := withTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()
	return s.storage.Stat(sctx, ref)
}

func (s *CertificateService) url(ctx context.Context, ref string) (string, error) {
	sctx, cancel := withTimeout(ctx, s.opts.StorageTimeout)
	defer cancel()
	return s.storage.URL(sctx, ref, s.opts.PresignExpiry)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
