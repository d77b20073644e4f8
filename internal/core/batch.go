package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/certgen/internal/cache"
	"github.com/edvin/certgen/internal/metrics"
	"github.com/edvin/certgen/internal/model"
	"github.com/edvin/certgen/internal/platform"
	"github.com/edvin/certgen/internal/storage"
)

// MaxBatchItems bounds the number of certificates in one batch.
const MaxBatchItems = 100

type BatchOptions struct {
	// TTL of batch headers and per-item progress entries.
	BatchTTL time.Duration
	// Parallelism bounds concurrent items within one batch.
	Parallelism  int
	CacheTimeout time.Duration
}

// BatchService runs batches of certificate requests. Every item is isolated:
// its failure is recorded on its own record and never affects siblings.
// Progress lives in the cache as one header entry plus one entry per item,
// so concurrent workers never rewrite shared state.
type BatchService struct {
	certs      *CertificateService
	cache      cache.Cache
	dispatcher Dispatcher
	metrics    *metrics.Recorder
	logger     zerolog.Logger
	opts       BatchOptions
	now        func() time.Time
}

func NewBatchService(certs *CertificateService, c cache.Cache, d Dispatcher, opts BatchOptions, logger zerolog.Logger, m *metrics.Recorder) *BatchService {
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = 24 * time.Hour
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &BatchService{
		certs:      certs,
		cache:      c,
		dispatcher: d,
		metrics:    m,
		logger:     logger.With().Str("component", "batches").Logger(),
		opts:       opts,
		now:        time.Now,
	}
}

// Submit accepts a batch. Synchronous batches return every item's record in
// request order. Asynchronous batches are handed to the dispatcher and
// return immediately with status queued.
func (s *BatchService) Submit(ctx context.Context, items []model.CertificateRequest, async bool) (*model.BatchResult, error) {
	if len(items) == 0 || len(items) > MaxBatchItems {
		return nil, &ValidationError{Fields: []FieldError{{
			Field:   "certificates",
			Message: fmt.Sprintf("must contain between 1 and %d entries", MaxBatchItems),
		}}}
	}

	created := s.now().UTC()
	header := model.Batch{
		BatchID:   platform.NewBatchID(created),
		Total:     len(items),
		Async:     async,
		Status:    model.BatchQueued,
		CreatedAt: created,
	}
	log := s.logger.With().Str("batch_id", header.BatchID).Int("total", header.Total).Logger()

	if async {
		return s.submitAsync(ctx, header, items, log)
	}

	ctx = context.WithoutCancel(ctx)
	header.Status = model.BatchProcessing
	if err := s.saveHeader(ctx, header); err != nil {
		log.Warn().Err(err).Msg("batch progress will not be observable")
	}
	s.metrics.BatchAccepted(false)

	records := make([]model.CertificateRecord, len(items))
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Parallelism)
	for i, item := range items {
		g.Go(func() error {
			records[i] = s.ProcessItem(ctx, header.BatchID, i, item)
			return nil
		})
	}
	_ = g.Wait()

	progress := summarize(header, records)
	header.Status = progress.Status
	if err := s.saveHeader(ctx, header); err != nil {
		log.Warn().Err(err).Msg("batch progress will not be observable")
	}
	log.Info().Int("completed", progress.Completed).Int("failed", progress.Failed).Msg("batch finished")

	return &model.BatchResult{
		BatchID:      header.BatchID,
		Total:        header.Total,
		Status:       header.Status,
		CreatedAt:    header.CreatedAt,
		Certificates: records,
	}, nil
}

func (s *BatchService) submitAsync(ctx context.Context, header model.Batch, items []model.CertificateRequest, log zerolog.Logger) (*model.BatchResult, error) {
	if s.dispatcher == nil {
		return nil, errors.New("asynchronous batches are not enabled")
	}
	// Progress of an async batch is only observable through the cache.
	if err := s.saveHeader(ctx, header); err != nil {
		return nil, err
	}
	job := model.BatchJob{BatchID: header.BatchID, Items: items, Parallelism: s.opts.Parallelism}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		s.deleteHeader(context.WithoutCancel(ctx), header.BatchID)
		return nil, fmt.Errorf("dispatch batch %s: %w", header.BatchID, err)
	}
	s.metrics.BatchAccepted(true)
	log.Info().Msg("batch queued")

	return &model.BatchResult{
		BatchID:   header.BatchID,
		Total:     header.Total,
		Status:    model.BatchQueued,
		CreatedAt: header.CreatedAt,
	}, nil
}

// ProcessItem generates one batch item and records its outcome under the
// batch. It never fails: every error becomes a FAILED record.
func (s *BatchService) ProcessItem(ctx context.Context, batchID string, index int, req model.CertificateRequest) model.CertificateRecord {
	rec, err := s.certs.Generate(ctx, req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			rec = s.rejectedItem(req, KindValidation, verr)
			s.certs.recordRejected(ctx, rec)
		case rec == nil:
			rec = s.rejectedItem(req, KindInternal, err)
			s.certs.recordRejected(ctx, rec)
		}
		s.logger.Warn().Err(err).Str("batch_id", batchID).Int("index", index).Msg("batch item failed")
	}
	s.saveItem(ctx, batchID, index, rec)
	return *rec
}

// FailItem records a FAILED outcome for an item whose processing was
// aborted before it produced a record of its own.
func (s *BatchService) FailItem(ctx context.Context, batchID string, index int, req model.CertificateRequest, cause error) model.CertificateRecord {
	rec := s.rejectedItem(req, KindInternal, cause)
	s.certs.recordRejected(ctx, rec)
	s.logger.Error().Err(cause).Str("batch_id", batchID).Int("index", index).Msg("batch item aborted")
	s.saveItem(ctx, batchID, index, rec)
	return *rec
}

func (s *BatchService) saveItem(ctx context.Context, batchID string, index int, rec *model.CertificateRecord) {
	if raw, err := json.Marshal(rec); err == nil {
		s.cacheSet(ctx, cache.BatchItemKey(batchID, index), raw)
	}
	s.metrics.BatchItem(string(rec.Status))
}

// rejectedItem builds the FAILED record of an item that produced no record
// of its own. Items without a usable id get a generated one.
func (s *BatchService) rejectedItem(req model.CertificateRequest, kind string, cause error) *model.CertificateRecord {
	now := s.now().UTC()
	id := req.CertificateID
	if !storage.ValidCertificateID(id) {
		id = platform.NewCertificateID(now)
	}
	msg := cause.Error()
	return &model.CertificateRecord{
		CertificateID:   id,
		Status:          model.StatusFailed,
		CertificateType: req.CertificateType,
		CreatedAt:       now,
		UpdatedAt:       now,
		Error:           &msg,
		ErrorKind:       kind,
	}
}

// Status assembles the live progress of a batch.
func (s *BatchService) Status(ctx context.Context, batchID string) (*model.BatchProgress, error) {
	raw, ok, err := s.cacheGet(ctx, cache.BatchKey(batchID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Kind: "batch", ID: batchID}
	}
	var header model.Batch
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", batchID, err)
	}

	records := make([]model.CertificateRecord, 0, header.Total)
	for i := range header.Total {
		raw, ok, err := s.cacheGet(ctx, cache.BatchItemKey(batchID, i))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var rec model.CertificateRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode batch %s item %d: %w", batchID, i, err)
		}
		records = append(records, rec)
	}
	return summarize(header, records), nil
}

// Complete records the final status of a batch once its items are done.
func (s *BatchService) Complete(ctx context.Context, batchID string) (*model.BatchProgress, error) {
	p, err := s.Status(ctx, batchID)
	if err != nil {
		return nil, err
	}
	header := model.Batch{BatchID: p.BatchID, Total: p.Total, Async: true, Status: p.Status, CreatedAt: p.CreatedAt}
	if err := s.saveHeader(ctx, header); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("batch_id", batchID).
		Str("status", string(p.Status)).
		Int("completed", p.Completed).
		Int("failed", p.Failed).
		Msg("batch finished")
	return p, nil
}

func summarize(header model.Batch, records []model.CertificateRecord) *model.BatchProgress {
	p := &model.BatchProgress{
		BatchID:   header.BatchID,
		Total:     header.Total,
		CreatedAt: header.CreatedAt,
		FailedIDs: []string{},
		Items:     records,
	}
	for _, rec := range records {
		switch rec.Status {
		case model.StatusCompleted:
			p.Completed++
		case model.StatusFailed:
			p.Failed++
			p.FailedIDs = append(p.FailedIDs, rec.CertificateID)
		}
	}
	p.Pending = p.Total - p.Completed - p.Failed

	switch {
	case p.Done() && p.Failed == 0:
		p.Status = model.BatchCompleted
	case p.Done() && p.Completed == 0:
		p.Status = model.BatchFailed
	case p.Done():
		p.Status = model.BatchPartialFailure
	case p.Completed+p.Failed == 0:
		p.Status = header.Status
	default:
		p.Status = model.BatchProcessing
	}
	return p
}

func (s *BatchService) saveHeader(ctx context.Context, header model.Batch) error {
	raw, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", header.BatchID, err)
	}
	cctx, cancel := withTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()
	key := cache.BatchKey(header.BatchID)
	if err := s.cache.Set(cctx, key, raw, s.opts.BatchTTL); err != nil {
		s.metrics.CacheError("set")
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *BatchService) deleteHeader(ctx context.Context, batchID string) {
	cctx, cancel := withTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()
	if err := s.cache.Delete(cctx, cache.BatchKey(batchID)); err != nil {
		s.metrics.CacheError("delete")
		s.logger.Warn().Err(err).Str("batch_id", batchID).Msg("cache delete failed")
	}
}

func (s *BatchService) cacheSet(ctx context.Context, key string, raw []byte) {
	cctx, cancel := withTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()
	if err := s.cache.Set(cctx, key, raw, s.opts.BatchTTL); err != nil {
		s.metrics.CacheError("set")
		s.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (s *BatchService) cacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	cctx, cancel := withTimeout(ctx, s.opts.CacheTimeout)
	defer cancel()
	raw, ok, err := s.cache.Get(cctx, key)
	if err != nil {
		s.metrics.CacheError("get")
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return raw, ok, nil
}
