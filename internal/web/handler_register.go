package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/vbonduro/fgsamples/internal/domain"
	"github.com/vbonduro/fgsamples/internal/photo"
	"github.com/vbonduro/fgsamples/internal/service"
	"github.com/vbonduro/fgsamples/internal/session"
)

var registerTemplates = []string{"partials/sample_form.html", "partials/flash.html"}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request, sc session.Context) {
	s.renderRegister(w, sc, http.StatusOK, map[string]any{
		"Flash": flashes[r.URL.Query().Get("done")],
	})
}

func (s *Server) renderRegister(w http.ResponseWriter, sc session.Context, status int, data map[string]any) {
	data["Session"] = sc
	data["ActiveNav"] = "register"
	data["LabelReader"] = s.labels != nil
	if _, ok := data["Form"]; !ok {
		data["Form"] = service.SampleInput{By: sc.Operator.Name}
	}
	files := append([]string{"base.html", "pages/register.html"}, registerTemplates...)
	if err := s.renderPage(w, status, data, files...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// parseSampleForm reads the multipart register and edit form. A missing image
// is not an error here.
func (s *Server) parseSampleForm(w http.ResponseWriter, r *http.Request) (service.SampleInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, photo.MaxUploadSize)
	if err := r.ParseMultipartForm(photo.MaxUploadSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return service.SampleInput{}, &domain.ValidationError{Message: "The image is too large.", Fields: []string{"image"}}
		}
		return service.SampleInput{}, &domain.ValidationError{Message: "The form could not be read."}
	}

	in := service.SampleInput{
		Brand:       r.FormValue("brand"),
		MFG:         r.FormValue("mfg"),
		BatchNumber: r.FormValue("batchNumber"),
		PackSize:    r.FormValue("packSize"),
		Barcode:     r.FormValue("barcode"),
		Description: r.FormValue("description"),
		SampleDate:  r.FormValue("sampleDate"),
		By:          r.FormValue("by"),
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, &domain.ValidationError{Message: "The image could not be read.", Fields: []string{"image"}}
	}
	defer closeWithLog(file, "upload file", s.logger)

	in.Image, err = io.ReadAll(file)
	if err != nil {
		return in, &domain.ValidationError{Message: "The image could not be read.", Fields: []string{"image"}}
	}
	in.ImageName = header.Filename
	return in, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, sc session.Context) {
	in, err := s.parseSampleForm(w, r)
	if err != nil {
		s.renderRegister(w, sc, statusFor(err), map[string]any{"Form": in, "Error": messageFor(err)})
		return
	}

	sample, err := s.samples.Register(r.Context(), sc, in)
	var conflict *domain.ConflictError
	switch {
	case errors.As(err, &conflict):
		s.renderConfirm(w, r, sc, sample, conflict)
		return
	case err != nil:
		in.Image = nil
		s.renderRegister(w, sc, statusFor(err), map[string]any{"Form": in, "Error": messageFor(err)})
		return
	}
	http.Redirect(w, r, "/register?done=registered", http.StatusSeeOther)
}

// renderConfirm shows the existing sample next to the upload and asks
// whether to overwrite it.
func (s *Server) renderConfirm(w http.ResponseWriter, r *http.Request, sc session.Context, pending *domain.Sample, conflict *domain.ConflictError) {
	existing, err := s.samples.Get(r.Context(), sc, pending.Ref)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.fail(w, r, err)
		return
	}
	if err := s.renderPage(w, http.StatusConflict, map[string]any{
		"Session":   sc,
		"Existing":  existing,
		"Pending":   pending,
		"Token":     conflict.Token,
		"ActiveNav": "register",
	}, "base.html", "pages/confirm.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleConfirmRegistration(w http.ResponseWriter, r *http.Request, sc session.Context) {
	if _, err := s.samples.ConfirmRegistration(r.Context(), sc, r.FormValue("token")); err != nil {
		s.fail(w, r, err)
		return
	}
	redirect(w, r, "/register?done=overwritten")
}

func (s *Server) handleCancelRegistration(w http.ResponseWriter, r *http.Request, sc session.Context) {
	if err := s.samples.CancelRegistration(r.Context(), sc, r.FormValue("token")); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.fail(w, r, err)
		return
	}
	redirect(w, r, "/register?done=cancelled")
}

func (s *Server) handleBarcodeLookup(w http.ResponseWriter, r *http.Request, sc session.Context) {
	res, err := s.samples.FindByBarcodePrefix(r.Context(), sc, r.URL.Query().Get("barcode"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.renderPartial(w, http.StatusOK, "lookup_results", map[string]any{
		"Result":  res,
		"Barcode": r.URL.Query().Get("barcode"),
	}, "partials/lookup_results.html"); err != nil {
		s.logger.Error("render partial failed", "error", err)
	}
}

type labelResponse struct {
	Brand       string `json:"brand,omitempty"`
	Description string `json:"description,omitempty"`
	MFG         string `json:"mfg,omitempty"`
	BatchNumber string `json:"batchNumber,omitempty"`
	PackSize    string `json:"packSize,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
}

// handleReadLabel returns the fields read from a label photo as JSON for the
// register form to fill in.
func (s *Server) handleReadLabel(w http.ResponseWriter, r *http.Request, sc session.Context) {
	if s.labels == nil {
		http.Error(w, "label reading is not configured", http.StatusNotFound)
		return
	}
	in, err := s.parseSampleForm(w, r)
	if err == nil && len(in.Image) == 0 {
		err = &domain.ValidationError{Message: "Select an image first.", Fields: []string{"image"}}
	}
	if err != nil {
		http.Error(w, messageFor(err), statusFor(err))
		return
	}
	mimeType, err := photo.DetectMIME(in.Image)
	if err != nil {
		http.Error(w, "unsupported image format", http.StatusBadRequest)
		return
	}

	label, err := s.labels.Read(r.Context(), bytes.NewReader(in.Image), mimeType)
	if err != nil {
		s.logger.Error("label read failed", "site", sc.Site, "error", err)
		http.Error(w, "Could not read the label. Please fill in the form.", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(labelResponse{
		Brand:       label.Brand,
		Description: label.Description,
		MFG:         label.MFG,
		BatchNumber: label.BatchNumber,
		PackSize:    label.PackSize,
		Barcode:     label.Barcode,
	}); err != nil {
		s.logger.Error("write label response failed", "error", err)
	}
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request, sc session.Context) {
	ref := domain.Ref{Brand: r.URL.Query().Get("brand"), Key: r.URL.Query().Get("key")}
	sample, err := s.samples.LoadForEdit(r.Context(), sc, ref)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderEdit(w, sc, http.StatusOK, map[string]any{
		"Sample": sample,
		"Form": service.SampleInput{
			Brand:       sample.Brand,
			MFG:         sample.MFG,
			BatchNumber: sample.BatchNumber,
			PackSize:    sample.PackSize,
			Barcode:     sample.Barcode,
			Description: sample.Description,
			SampleDate:  sample.SampleDate,
			By:          sample.By,
		},
	})
}

func (s *Server) renderEdit(w http.ResponseWriter, sc session.Context, status int, data map[string]any) {
	data["Session"] = sc
	data["ActiveNav"] = "register"
	files := append([]string{"base.html", "pages/edit.html"}, registerTemplates...)
	if err := s.renderPage(w, status, data, files...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, sc session.Context) {
	in, err := s.parseSampleForm(w, r)
	ref := domain.Ref{Brand: r.FormValue("originalBrand"), Key: r.FormValue("originalKey")}
	if err == nil {
		var sample *domain.Sample
		sample, err = s.samples.Edit(r.Context(), sc, ref, in)
		if err == nil {
			v := url.Values{"brand": {sample.Ref.Brand}, "key": {sample.Ref.Key}, "done": {"updated"}}
			http.Redirect(w, r, "/take?"+v.Encode(), http.StatusSeeOther)
			return
		}
	}
	if errors.Is(err, domain.ErrNotFound) {
		s.fail(w, r, err)
		return
	}

	current, getErr := s.samples.Get(r.Context(), sc, ref)
	if getErr != nil {
		s.fail(w, r, getErr)
		return
	}
	in.Image = nil
	s.renderEdit(w, sc, statusFor(err), map[string]any{"Sample": current, "Form": in, "Error": messageFor(err)})
}
