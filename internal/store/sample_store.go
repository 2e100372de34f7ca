package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/domain"
)

// Stored field names.
const (
	FieldBrand       = "brand"
	FieldMFG         = "mfg"
	FieldBatchNumber = "batchNumber"
	FieldPackSize    = "packSize"
	FieldBarcode     = "barcode"
	FieldDescription = "description"
	FieldImageURL    = "imageUrl"
	FieldSampleDate  = "sampleDate"
	FieldBy          = "by"
	FieldStatus      = "status"
	FieldTakenBy     = "takenBy"
	FieldLine        = "line"
	FieldDate        = "date"
	FieldTime        = "time"
	FieldName        = "name"
	FieldReturnBy    = "returnBy"
	FieldReturnedBy  = "returnedBy"
	FieldReturnLine  = "returnLine"
	FieldReturnDate  = "returnDate"
	FieldReturnTime  = "returnTime"
	FieldUploadedAt  = "uploadedAt"
	FieldUpdatedAt   = "updatedAt"
	FieldTimestamp   = "timestamp"
)

type SampleStore struct {
	ds docstore.Store
}

func NewSampleStore(ds docstore.Store) *SampleStore {
	return &SampleStore{ds: ds}
}

func brandsPath(site string) string {
	return docstore.Join("sites", site, "fg_samples")
}

func brandPath(site, brand string) string {
	return docstore.Join("sites", site, "fg_samples", brand)
}

func samplesPath(site, brand string) string {
	return docstore.Join("sites", site, "fg_samples", brand, "samples")
}

func samplePath(ref domain.Ref) string {
	return docstore.Join("sites", ref.Site, "fg_samples", ref.Brand, "samples", ref.Key)
}

// ListBrands returns the brand partition IDs of a site in ID order.
func (s *SampleStore) ListBrands(ctx context.Context, site string) ([]string, error) {
	docs, err := s.ds.List(ctx, brandsPath(site))
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	brands := make([]string, 0, len(docs))
	for _, d := range docs {
		brands = append(brands, d.ID)
	}
	return brands, nil
}

// ListByBrand returns every sample in a brand partition in key order.
func (s *SampleStore) ListByBrand(ctx context.Context, site, brand string) ([]*domain.Sample, error) {
	docs, err := s.ds.List(ctx, samplesPath(site, brand))
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	return toSamples(site, brand, docs), nil
}

// Get returns the sample at ref, or domain.ErrNotFound.
func (s *SampleStore) Get(ctx context.Context, ref domain.Ref) (*domain.Sample, error) {
	doc, err := s.ds.Get(ctx, samplePath(ref))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sample: %w", err)
	}
	return toSample(ref.Site, ref.Brand, doc), nil
}

// FindDuplicates returns samples in the brand partition whose description
// and barcode both equal the given values exactly.
func (s *SampleStore) FindDuplicates(ctx context.Context, site, brand, description, barcode string) ([]*domain.Sample, error) {
	docs, err := s.ds.Query(ctx, samplesPath(site, brand),
		docstore.Equal(FieldDescription, description),
		docstore.Equal(FieldBarcode, barcode),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	return toSamples(site, brand, docs), nil
}

// FindByBarcodePrefix returns samples in the brand partition whose barcode
// starts with prefix.
func (s *SampleStore) FindByBarcodePrefix(ctx context.Context, site, brand, prefix string) ([]*domain.Sample, error) {
	docs, err := s.ds.Query(ctx, samplesPath(site, brand),
		docstore.Range(FieldBarcode, prefix, docstore.PrefixEnd(prefix)))
	if err != nil {
		return nil, fmt.Errorf("failed to query barcode prefix: %w", err)
	}
	return toSamples(site, brand, docs), nil
}

// UpsertBrand creates the brand partition marker if it is missing.
func (s *SampleStore) UpsertBrand(ctx context.Context, site, brand string) error {
	if err := s.ds.Set(ctx, brandPath(site, brand), docstore.Fields{FieldBrand: brand}, docstore.Merge()); err != nil {
		return fmt.Errorf("failed to upsert brand: %w", err)
	}
	return nil
}

// Put replaces the sample document at ref with fields.
func (s *SampleStore) Put(ctx context.Context, ref domain.Ref, fields docstore.Fields) error {
	if err := s.ds.Set(ctx, samplePath(ref), fields); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	return nil
}

// Merge writes fields into the sample document at ref, creating it if needed.
func (s *SampleStore) Merge(ctx context.Context, ref domain.Ref, fields docstore.Fields) error {
	if err := s.ds.Set(ctx, samplePath(ref), fields, docstore.Merge()); err != nil {
		return fmt.Errorf("failed to merge sample: %w", err)
	}
	return nil
}

// Update writes fields into an existing sample document. It returns
// domain.ErrNotFound when there is nothing at ref.
func (s *SampleStore) Update(ctx context.Context, ref domain.Ref, fields docstore.Fields) error {
	err := s.ds.Update(ctx, samplePath(ref), fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update sample: %w", err)
	}
	return nil
}

func toSamples(site, brand string, docs []*docstore.Document) []*domain.Sample {
	samples := make([]*domain.Sample, 0, len(docs))
	for _, d := range docs {
		samples = append(samples, toSample(site, brand, d))
	}
	return samples
}

func toSample(site, brand string, d *docstore.Document) *domain.Sample {
	return &domain.Sample{
		Ref:         domain.Ref{Site: site, Brand: brand, Key: d.ID},
		Brand:       d.String(FieldBrand),
		MFG:         d.String(FieldMFG),
		BatchNumber: d.String(FieldBatchNumber),
		PackSize:    d.String(FieldPackSize),
		Barcode:     d.String(FieldBarcode),
		Description: d.String(FieldDescription),
		ImageURL:    d.String(FieldImageURL),
		SampleDate:  d.String(FieldSampleDate),
		By:          d.String(FieldBy),
		Status:      domain.Status(d.String(FieldStatus)),
		TakenBy:     d.String(FieldTakenBy),
		Line:        d.String(FieldLine),
		Date:        d.String(FieldDate),
		Time:        d.String(FieldTime),
		Name:        d.String(FieldName),
		ReturnBy:    d.String(FieldReturnBy),
		ReturnedBy:  d.String(FieldReturnedBy),
		ReturnLine:  d.String(FieldReturnLine),
		ReturnDate:  d.String(FieldReturnDate),
		ReturnTime:  d.String(FieldReturnTime),
		UploadedAt:  d.Time(FieldUploadedAt),
		UpdatedAt:   d.Time(FieldUpdatedAt),
		Timestamp:   d.Time(FieldTimestamp),
	}
}

// CreateFields is the full document written when a sample is registered.
func CreateFields(s *domain.Sample) docstore.Fields {
	return docstore.Fields{
		FieldBrand:       s.Brand,
		FieldMFG:         s.MFG,
		FieldBatchNumber: s.BatchNumber,
		FieldPackSize:    s.PackSize,
		FieldBarcode:     s.Barcode,
		FieldDescription: s.Description,
		FieldImageURL:    s.ImageURL,
		FieldUploadedAt:  s.UploadedAt,
		FieldStatus:      string(domain.StatusAvailable),
		FieldSampleDate:  s.SampleDate,
		FieldBy:          s.By,
	}
}

// EditFields is the partial document merged when a sample is edited.
func EditFields(s *domain.Sample, updatedAt time.Time) docstore.Fields {
	return docstore.Fields{
		FieldBrand:       s.Brand,
		FieldMFG:         s.MFG,
		FieldBatchNumber: s.BatchNumber,
		FieldPackSize:    s.PackSize,
		FieldBarcode:     s.Barcode,
		FieldDescription: s.Description,
		FieldImageURL:    s.ImageURL,
		FieldSampleDate:  s.SampleDate,
		FieldBy:          s.By,
		FieldUpdatedAt:   updatedAt,
	}
}
