package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vbonduro/fgsamples/internal/blobstore"
	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/photo"
	"github.com/vbonduro/fgsamples/internal/session"
	"github.com/vbonduro/fgsamples/internal/store"
)

// SampleInput is the registration and edit form.
type SampleInput struct {
	Brand       string
	MFG         string
	BatchNumber string
	PackSize    string
	Barcode     string
	Description string
	SampleDate  string
	By          string

	// Image is optional on edit.
	Image     []byte
	ImageName string
}

func (in *SampleInput) trim() {
	for _, f := range []*string{&in.Brand, &in.MFG, &in.BatchNumber, &in.PackSize, &in.Barcode, &in.Description, &in.SampleDate, &in.By} {
		*f = strings.TrimSpace(*f)
	}
}

// missing lists the blank required text fields. Barcode is optional.
func (in *SampleInput) missing() []string {
	var fields []string
	for _, f := range []struct {
		name, value string
	}{
		{"brand", in.Brand},
		{"description", in.Description},
		{"mfg", in.MFG},
		{"batchNumber", in.BatchNumber},
		{"packSize", in.PackSize},
		{"sampleDate", in.SampleDate},
		{"by", in.By},
	} {
		if f.value == "" {
			fields = append(fields, f.name)
		}
	}
	return fields
}

func (in *SampleInput) ref(site string) domain.Ref {
	return domain.Ref{Site: site, Brand: domain.Normalize(in.Brand), Key: domain.Key(in.Description, in.Barcode)}
}

type pendingRegistration struct {
	site   string
	sample *domain.Sample
}

// Register uploads the image and writes a new sample. When a sample with the
// same description and barcode already exists in the brand, nothing is
// written; the sample is held under a token and a *domain.ConflictError is
// returned alongside it so the caller can ask for confirmation.
func (s *SampleService) Register(ctx context.Context, sc session.Context, in SampleInput) (sample *domain.Sample, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "register", start, err) }()
	if err := requireSite(sc); err != nil {
		return nil, err
	}

	in.trim()
	missing := in.missing()
	if len(in.Image) == 0 {
		missing = append(missing, "image")
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Message: "Please fill in all required fields and select an image.", Fields: missing}
	}

	url, err := s.upload(ctx, in)
	if err != nil {
		return nil, err
	}

	ref := in.ref(sc.Site)
	sample = &domain.Sample{
		Ref:         ref,
		Brand:       in.Brand,
		MFG:         in.MFG,
		BatchNumber: in.BatchNumber,
		PackSize:    in.PackSize,
		Barcode:     in.Barcode,
		Description: in.Description,
		ImageURL:    url,
		SampleDate:  in.SampleDate,
		By:          in.By,
		Status:      domain.StatusAvailable,
		UploadedAt:  s.now().UTC(),
	}

	dups, err := s.samples.FindDuplicates(ctx, sc.Site, ref.Brand, in.Description, in.Barcode)
	if err != nil {
		s.logger.Error("duplicate check failed", "site", sc.Site, "sample", ref.Key, "error", err)
		s.abandonUpload(ctx, url)
		return nil, &domain.TransientError{Message: "Upload failed. Please try again.", Err: err}
	}
	if len(dups) > 0 {
		token := ulid.Make().String()
		s.pending.Set(token, &pendingRegistration{site: sc.Site, sample: sample}, s.pendingTTL)
		s.logger.Info("registration awaiting confirmation", "site", sc.Site, "sample", ref.Key, "token", token)
		return sample, &domain.ConflictError{Token: token, Key: ref.Key}
	}

	if err := s.samples.UpsertBrand(ctx, sc.Site, ref.Brand); err != nil {
		s.logger.Error("failed to upsert brand", "site", sc.Site, "brand", ref.Brand, "error", err)
		s.abandonUpload(ctx, url)
		return nil, &domain.TransientError{Message: "Upload failed. Please try again.", Err: err}
	}
	if err := s.samples.Put(ctx, ref, store.CreateFields(sample)); err != nil {
		s.logger.Error("failed to write sample", "site", sc.Site, "sample", ref.Key, "error", err)
		s.abandonUpload(ctx, url)
		return nil, &domain.TransientError{Message: "Upload failed. Please try again.", Err: err}
	}
	s.logger.Info("sample registered", "site", sc.Site, "brand", ref.Brand, "sample", ref.Key)
	return sample, nil
}

// Pending returns the registration held under token, or domain.ErrNotFound.
func (s *SampleService) Pending(sc session.Context, token string) (*domain.Sample, error) {
	p, err := s.pendingFor(sc, token)
	if err != nil {
		return nil, err
	}
	return p.sample, nil
}

func (s *SampleService) pendingFor(sc session.Context, token string) (*pendingRegistration, error) {
	item := s.pending.Get(token)
	if item == nil || item.Expired() || item.Value().site != sc.Site {
		return nil, domain.ErrNotFound
	}
	return item.Value(), nil
}

// ConfirmRegistration overwrites the existing sample with the registration
// held under token.
func (s *SampleService) ConfirmRegistration(ctx context.Context, sc session.Context, token string) (sample *domain.Sample, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "confirm_registration", start, err) }()

	p, err := s.pendingFor(sc, token)
	if err != nil {
		return nil, err
	}
	if err := s.samples.Put(ctx, p.sample.Ref, store.CreateFields(p.sample)); err != nil {
		s.logger.Error("failed to overwrite sample", "site", sc.Site, "sample", p.sample.Ref.Key, "error", err)
		return nil, &domain.TransientError{Message: "Upload failed. Please try again.", Err: err}
	}
	s.pending.Delete(token)
	s.logger.Info("sample overwritten", "site", sc.Site, "brand", p.sample.Ref.Brand, "sample", p.sample.Ref.Key)
	return p.sample, nil
}

// CancelRegistration drops the registration held under token. The existing
// sample is untouched.
func (s *SampleService) CancelRegistration(ctx context.Context, sc session.Context, token string) error {
	p, err := s.pendingFor(sc, token)
	if err != nil {
		return err
	}
	s.pending.Delete(token)
	s.abandonUpload(ctx, p.sample.ImageURL)
	return nil
}

// LoadForEdit returns the sample to prefill the edit form.
func (s *SampleService) LoadForEdit(ctx context.Context, sc session.Context, ref domain.Ref) (*domain.Sample, error) {
	return s.Get(ctx, sc, ref)
}

// Edit merges the form into the sample addressed by the edited brand,
// description and barcode. If those changed, a new document is written and
// the old one is left as is, image included. Otherwise a new image replaces
// the old one, whose blob is deleted best-effort once the merge has been
// written.
func (s *SampleService) Edit(ctx context.Context, sc session.Context, ref domain.Ref, in SampleInput) (sample *domain.Sample, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "edit", start, err) }()

	current, err := s.Get(ctx, sc, ref)
	if err != nil {
		return nil, err
	}

	in.trim()
	if missing := in.missing(); len(missing) > 0 {
		return nil, &domain.ValidationError{Message: "Please fill in all required fields.", Fields: missing}
	}

	imageURL := current.ImageURL
	uploaded := ""
	if len(in.Image) > 0 {
		uploaded, err = s.upload(ctx, in)
		if err != nil {
			return nil, err
		}
		imageURL = uploaded
	}

	target := in.ref(sc.Site)
	edited := &domain.Sample{
		Ref:         target,
		Brand:       in.Brand,
		MFG:         in.MFG,
		BatchNumber: in.BatchNumber,
		PackSize:    in.PackSize,
		Barcode:     in.Barcode,
		Description: in.Description,
		ImageURL:    imageURL,
		SampleDate:  in.SampleDate,
		By:          in.By,
	}
	if target.Brand != ref.Brand {
		if err := s.samples.UpsertBrand(ctx, sc.Site, target.Brand); err != nil {
			s.logger.Error("failed to upsert brand", "site", sc.Site, "brand", target.Brand, "error", err)
			s.abandonUpload(ctx, uploaded)
			return nil, &domain.TransientError{Message: "Failed to update sample. Please try again.", Err: err}
		}
	}
	if err := s.samples.Merge(ctx, target, store.EditFields(edited, s.now().UTC())); err != nil {
		s.logger.Error("failed to update sample", "site", sc.Site, "sample", target.Key, "error", err)
		s.abandonUpload(ctx, uploaded)
		return nil, &domain.TransientError{Message: "Failed to update sample. Please try again.", Err: err}
	}
	switch {
	case target != current.Ref:
		s.logger.Warn("edit moved sample to a new key, old document kept",
			"site", sc.Site, "from", current.Ref.Key, "to", target.Key)
	case uploaded != "" && current.ImageURL != "" && current.ImageURL != uploaded:
		s.deleteImage(ctx, current.ImageURL)
	}

	sample, err = s.samples.Get(ctx, target)
	if err != nil {
		s.logger.Error("failed to reload sample", "site", sc.Site, "sample", target.Key, "error", err)
		return nil, &domain.TransientError{Message: "Sample saved but could not be reloaded. Please refresh.", Err: err}
	}
	return sample, nil
}

func (s *SampleService) upload(ctx context.Context, in SampleInput) (string, error) {
	data, mimeType, err := photo.Prepare(in.Image, s.maxImageDimension)
	if err != nil {
		if errors.Is(err, photo.ErrUnsupportedFormat) {
			return "", &domain.ValidationError{Message: "Unsupported image format. Use JPEG, PNG, GIF or WebP.", Fields: []string{"image"}}
		}
		return "", &domain.ValidationError{Message: "The image could not be read.", Fields: []string{"image"}}
	}

	key := blobstore.NewKey(in.Brand, in.Description, in.ImageName, mimeType)
	url, err := s.blobs.Put(ctx, key, mimeType, bytes.NewReader(data))
	if err != nil {
		s.logger.Error("image upload failed", "key", key, "error", err)
		return "", &domain.TransientError{Message: "Image upload failed. Please try again.", Err: err}
	}
	s.logger.Debug("image uploaded", "key", key, "bytes", len(data))
	return url, nil
}

// abandonUpload removes an image no sample refers to, when enabled.
func (s *SampleService) abandonUpload(ctx context.Context, url string) {
	if !s.cleanupAbandoned || url == "" {
		return
	}
	s.deleteImage(ctx, url)
}

// deleteImage deletes the blob behind url, logging instead of failing.
func (s *SampleService) deleteImage(ctx context.Context, url string) {
	key, ok := s.blobs.KeyFromURL(url)
	if !ok {
		s.logger.Warn("image url not managed by blob store, not deleting", "url", url)
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete image", "key", key, "error", err)
	}
}
