package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/fgsamples/internal/blobstore"
	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/report"
	"github.com/vbonduro/fgsamples/internal/search"
	"github.com/vbonduro/fgsamples/internal/session"
	"github.com/vbonduro/fgsamples/internal/store"
)

const (
	dateFormat = "02/01/2006"
	timeFormat = "03:04:05 PM"
)

// sampleRepository is the subset of store.SampleStore that SampleService requires.
type sampleRepository interface {
	ListBrands(ctx context.Context, site string) ([]string, error)
	ListByBrand(ctx context.Context, site, brand string) ([]*domain.Sample, error)
	Get(ctx context.Context, ref domain.Ref) (*domain.Sample, error)
	FindDuplicates(ctx context.Context, site, brand, description, barcode string) ([]*domain.Sample, error)
	FindByBarcodePrefix(ctx context.Context, site, brand, prefix string) ([]*domain.Sample, error)
	UpsertBrand(ctx context.Context, site, brand string) error
	Put(ctx context.Context, ref domain.Ref, fields docstore.Fields) error
	Merge(ctx context.Context, ref domain.Ref, fields docstore.Fields) error
	Update(ctx context.Context, ref domain.Ref, fields docstore.Fields) error
}

// metricsRecorder is implemented by *metrics.Recorder.
type metricsRecorder interface {
	Observe(ctx context.Context, operation string, err error, d time.Duration)
}

// AuditPolicy decides what happens to the audit fields of the opposite state
// when a sample changes state. The take screen and the return screen have
// always behaved differently and both are kept.
type AuditPolicy int

const (
	// PreserveOppositeAudit leaves the other state's audit fields alone.
	// A return under this policy records the returner in returnBy.
	PreserveOppositeAudit AuditPolicy = iota
	// ClearOppositeAudit blanks the other state's audit fields. A return
	// under this policy records the returner in returnedBy.
	ClearOppositeAudit
)

type Options struct {
	// Location is used for the date and time strings written on take and
	// return. Defaults to time.Local.
	Location *time.Location
	// MaxImageDimension downsizes uploads larger than this; 0 keeps originals.
	MaxImageDimension int
	// PendingTTL bounds how long a duplicate registration waits for
	// confirmation.
	PendingTTL time.Duration
	// CleanupAbandonedUploads deletes the uploaded image when a registration
	// is cancelled or fails after the upload.
	CleanupAbandonedUploads bool
	Now                     func() time.Time
}

type SampleService struct {
	samples sampleRepository
	blobs   blobstore.Store
	metrics metricsRecorder
	pending *ccache.Cache[*pendingRegistration]
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger

	maxImageDimension int
	pendingTTL        time.Duration
	cleanupAbandoned  bool
}

func NewSampleService(
	samples sampleRepository,
	blobs blobstore.Store,
	metrics metricsRecorder,
	opts Options,
	logger *slog.Logger,
) *SampleService {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 15 * time.Minute
	}
	return &SampleService{
		samples:           samples,
		blobs:             blobs,
		metrics:           metrics,
		pending:           ccache.New(ccache.Configure[*pendingRegistration]().MaxSize(1000).ItemsToPrune(50)),
		loc:               opts.Location,
		now:               opts.Now,
		logger:            logger,
		maxImageDimension: opts.MaxImageDimension,
		pendingTTL:        opts.PendingTTL,
		cleanupAbandoned:  opts.CleanupAbandonedUploads,
	}
}

// Close stops the pending registration cache.
func (s *SampleService) Close() {
	s.pending.Stop()
}

func (s *SampleService) observe(ctx context.Context, op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err, time.Since(start))
	}
}

func requireSite(sc session.Context) error {
	if sc.Site == "" {
		return &domain.ValidationError{Message: "No site selected. Please log in again."}
	}
	return nil
}

func requireRef(ref domain.Ref) error {
	if ref.IsZero() {
		return &domain.ValidationError{Message: "No sample selected.", Fields: []string{"brand", "key"}}
	}
	return nil
}

// Load returns every sample of the session's site, brand partitions in ID
// order and samples in key order within each. Partitions are fetched in
// parallel; any failure aborts the whole load.
func (s *SampleService) Load(ctx context.Context, sc session.Context) (samples []*domain.Sample, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "load", start, err) }()
	if err := requireSite(sc); err != nil {
		return nil, err
	}

	brands, err := s.samples.ListBrands(ctx, sc.Site)
	if err != nil {
		s.logger.Error("failed to list brands", "site", sc.Site, "error", err)
		return nil, &domain.TransientError{Message: "Failed to load samples. Please try again.", Err: err}
	}

	perBrand := make([][]*domain.Sample, len(brands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, brand := range brands {
		g.Go(func() error {
			list, err := s.samples.ListByBrand(gctx, sc.Site, brand)
			if err != nil {
				return fmt.Errorf("failed to load brand %s: %w", brand, err)
			}
			perBrand[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to load samples", "site", sc.Site, "error", err)
		return nil, &domain.TransientError{Message: "Failed to load samples. Please try again.", Err: err}
	}

	for _, list := range perBrand {
		for _, sample := range list {
			if issues := sample.Issues(); len(issues) > 0 {
				s.logger.Warn("sample has inconsistent fields",
					"site", sc.Site, "brand", sample.Ref.Brand, "sample", sample.Ref.Key, "issues", issues)
			}
		}
		samples = append(samples, list...)
	}
	return samples, nil
}

// Search loads the site and applies search.Match. A blank query returns an
// empty result without touching the store.
func (s *SampleService) Search(ctx context.Context, sc session.Context, q string) (search.Result, error) {
	if len(search.Keywords(q)) == 0 {
		return search.Result{}, nil
	}
	samples, err := s.Load(ctx, sc)
	if err != nil {
		return search.Result{}, err
	}
	return search.Match(samples, q), nil
}

// ReturnCandidates is the return screen's search: samples where q appears
// in mfg, batch number, description or brand. A blank query returns nothing.
func (s *SampleService) ReturnCandidates(ctx context.Context, sc session.Context, q string) ([]*domain.Sample, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	samples, err := s.Load(ctx, sc)
	if err != nil {
		return nil, err
	}
	var out []*domain.Sample
	for _, sample := range samples {
		if search.ContainsAny(sample, q) {
			out = append(out, sample)
		}
	}
	return out, nil
}

// FindByBarcodePrefix queries every brand partition for barcodes starting
// with prefix. A single hit is returned as Selected.
func (s *SampleService) FindByBarcodePrefix(ctx context.Context, sc session.Context, prefix string) (res search.Result, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "barcode_lookup", start, err) }()
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return search.Result{}, nil
	}
	if err := requireSite(sc); err != nil {
		return search.Result{}, err
	}

	brands, err := s.samples.ListBrands(ctx, sc.Site)
	if err != nil {
		return search.Result{}, &domain.TransientError{Message: "Search failed. Please try again.", Err: err}
	}
	for _, brand := range brands {
		hits, err := s.samples.FindByBarcodePrefix(ctx, sc.Site, brand, prefix)
		if err != nil {
			s.logger.Error("barcode lookup failed", "site", sc.Site, "brand", brand, "error", err)
			return search.Result{}, &domain.TransientError{Message: "Search failed. Please try again.", Err: err}
		}
		res.Matches = append(res.Matches, hits...)
	}
	if len(res.Matches) == 1 {
		res.Selected = res.Matches[0]
	}
	return res, nil
}

// Get returns one sample of the session's site.
func (s *SampleService) Get(ctx context.Context, sc session.Context, ref domain.Ref) (*domain.Sample, error) {
	if err := requireSite(sc); err != nil {
		return nil, err
	}
	ref.Site = sc.Site
	if err := requireRef(ref); err != nil {
		return nil, err
	}
	sample, err := s.samples.Get(ctx, ref)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("failed to get sample", "site", sc.Site, "sample", ref.Key, "error", err)
		return nil, &domain.TransientError{Message: "Failed to load sample. Please try again.", Err: err}
	}
	return sample, err
}

func checkOperator(op session.Operator) (session.Operator, error) {
	op.Name = strings.TrimSpace(op.Name)
	op.Line = strings.TrimSpace(op.Line)
	var missing []string
	if op.Name == "" {
		missing = append(missing, "name")
	}
	if op.Line == "" {
		missing = append(missing, "line")
	}
	if len(missing) > 0 {
		return op, &domain.ValidationError{Message: "Name and Line are required.", Fields: missing}
	}
	return op, nil
}

// Take marks a sample as taken by op. Taking an already taken sample is not
// refused; the later write wins.
func (s *SampleService) Take(ctx context.Context, sc session.Context, ref domain.Ref, op session.Operator, policy AuditPolicy) (sample *domain.Sample, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "take", start, err) }()
	if err := requireSite(sc); err != nil {
		return nil, err
	}
	op, err = checkOperator(op)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	fields := docstore.Fields{
		store.FieldStatus:    string(domain.StatusTaken),
		store.FieldTakenBy:   op.Name,
		store.FieldLine:      op.Line,
		store.FieldDate:      now.Format(dateFormat),
		store.FieldTime:      now.Format(timeFormat),
		store.FieldTimestamp: docstore.ServerTimestamp,
	}
	if policy == ClearOppositeAudit {
		for _, f := range []string{store.FieldReturnBy, store.FieldReturnedBy, store.FieldReturnLine, store.FieldReturnDate, store.FieldReturnTime} {
			fields[f] = ""
		}
	}

	ref.Site = sc.Site
	if err := requireRef(ref); err != nil {
		return nil, err
	}
	return s.transition(ctx, ref, fields, "take")
}

// Return marks a sample as available again, recording op as the returner.
func (s *SampleService) Return(ctx context.Context, sc session.Context, ref domain.Ref, op session.Operator, policy AuditPolicy) (sample *domain.Sample, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "return", start, err) }()
	if err := requireSite(sc); err != nil {
		return nil, err
	}
	op, err = checkOperator(op)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	fields := docstore.Fields{
		store.FieldStatus:     string(domain.StatusAvailable),
		store.FieldReturnLine: op.Line,
		store.FieldReturnDate: now.Format(dateFormat),
		store.FieldReturnTime: now.Format(timeFormat),
		store.FieldTimestamp:  docstore.ServerTimestamp,
	}
	switch policy {
	case ClearOppositeAudit:
		fields[store.FieldReturnedBy] = op.Name
		for _, f := range []string{store.FieldName, store.FieldLine, store.FieldDate, store.FieldTime} {
			fields[f] = ""
		}
	default:
		fields[store.FieldReturnBy] = op.Name
	}

	ref.Site = sc.Site
	if err := requireRef(ref); err != nil {
		return nil, err
	}
	return s.transition(ctx, ref, fields, "return")
}

// transition applies a partial update and re-reads the sample so server
// assigned fields are visible. Nothing is retried.
func (s *SampleService) transition(ctx context.Context, ref domain.Ref, fields docstore.Fields, op string) (*domain.Sample, error) {
	if err := s.samples.Update(ctx, ref, fields); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to "+op+" sample", "site", ref.Site, "brand", ref.Brand, "sample", ref.Key, "error", err)
		return nil, &domain.TransientError{Message: fmt.Sprintf("Failed to %s sample. Please try again.", op), Err: err}
	}

	sample, err := s.samples.Get(ctx, ref)
	if err != nil {
		s.logger.Error("failed to reload sample", "site", ref.Site, "brand", ref.Brand, "sample", ref.Key, "error", err)
		return nil, &domain.TransientError{Message: "Sample saved but could not be reloaded. Please refresh.", Err: err}
	}
	s.logger.Info("sample "+op, "site", ref.Site, "brand", ref.Brand, "sample", ref.Key)
	return sample, nil
}

type Counts struct {
	Total     int
	Taken     int
	Available int
}

// Counts backs the home screen counters. Anything not taken counts as
// available.
func (s *SampleService) Counts(ctx context.Context, sc session.Context) (Counts, error) {
	samples, err := s.Load(ctx, sc)
	if err != nil {
		return Counts{}, err
	}
	c := Counts{Total: len(samples)}
	for _, sample := range samples {
		if sample.Status == domain.StatusTaken {
			c.Taken++
		}
	}
	c.Available = c.Total - c.Taken
	return c, nil
}

// Report returns last week's activity for the site, most recent first,
// narrowed by query and status.
func (s *SampleService) Report(ctx context.Context, sc session.Context, query, status string) ([]*domain.Sample, error) {
	samples, err := s.Load(ctx, sc)
	if err != nil {
		return nil, err
	}
	return report.Filter(report.Weekly(samples, s.now()), query, status), nil
}

// Location is where take and return times are rendered.
func (s *SampleService) Location() *time.Location {
	return s.loc
}
