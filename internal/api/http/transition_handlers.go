package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aet-hub/aet-hub/internal/apperr"
	appTransition "github.com/aet-hub/aet-hub/internal/application/transition"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/infrastructure/storage"
)

// multipartOverhead leaves room for the form fields around the permit file.
const multipartOverhead = 1 << 20

type transitionRequest struct {
	Status        string  `json:"status" validate:"required"`
	Comments      *string `json:"comments,omitempty" validate:"omitempty,max=2000"`
	ValidUntil    *string `json:"validUntil,omitempty" validate:"omitempty,datetime=2006-01-02"`
	IssuedAt      *string `json:"issuedAt,omitempty" validate:"omitempty,datetime=2006-01-02"`
	AETNumber     *string `json:"aetNumber,omitempty" validate:"omitempty,max=64"`
	SelectedTaxID *string `json:"selectedTaxId,omitempty"`
}

// transitionState accepts either a JSON body or a multipart form carrying the same
// fields plus an optional "file" part.
func (s *Server) transitionState(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	state := chi.URLParam(r, "state")

	var (
		req  transitionRequest
		file *appTransition.File
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, file, err = parseTransitionForm(w, r)
		if err == nil {
			err = validateStruct(&req)
		}
	} else {
		err = decodeBody(r, &req)
	}
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	opts, err := req.options()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	opts.File = file

	l, err := s.transitionSvc.Transition(r.Context(), actorFromRequest(r), id, state, req.Status, opts)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func parseTransitionForm(w http.ResponseWriter, r *http.Request) (transitionRequest, *appTransition.File, error) {
	var req transitionRequest
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(storage.MaxFileSize + multipartOverhead); err != nil {
		return req, nil, apperr.Wrap(apperr.CodeValidation, err, "invalid multipart form")
	}
	req.Status = r.FormValue("status")
	req.Comments = formValue(r, "comments")
	req.ValidUntil = formValue(r, "validUntil")
	req.IssuedAt = formValue(r, "issuedAt")
	req.AETNumber = formValue(r, "aetNumber")
	req.SelectedTaxID = formValue(r, "selectedTaxId")

	part, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return req, nil, nil
	}
	if err != nil {
		return req, nil, apperr.Wrap(apperr.CodeValidation, err, "invalid file part")
	}
	defer part.Close()
	data, err := io.ReadAll(part)
	if err != nil {
		return req, nil, apperr.Wrap(apperr.CodeValidation, err, "read file part")
	}
	return req, &appTransition.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func formValue(r *http.Request, key string) *string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return &v
	}
	return nil
}

func (req transitionRequest) options() (appTransition.Options, error) {
	opts := appTransition.Options{
		Comments:      req.Comments,
		AETNumber:     req.AETNumber,
		SelectedTaxID: req.SelectedTaxID,
	}
	var err error
	if opts.ValidUntil, err = parseDatePtr(req.ValidUntil, "validUntil"); err != nil {
		return opts, err
	}
	if opts.IssuedAt, err = parseDatePtr(req.IssuedAt, "issuedAt"); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseDatePtr(v *string, field string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := license.ParseDate(*v)
	if err != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "%s must be a YYYY-MM-DD date", field)
	}
	return &t, nil
}
