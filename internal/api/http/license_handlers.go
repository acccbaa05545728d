package httpapi

import (
	"net/http"
	"strings"

	appLicense "github.com/aet-hub/aet-hub/internal/application/license"
	"github.com/aet-hub/aet-hub/internal/domain/license"
)

type licenseRequest struct {
	TransporterID    int64    `json:"transporterId" validate:"required,gt=0"`
	LicenseType      string   `json:"licenseType"`
	TractorUnitID    *int64   `json:"tractorUnitId,omitempty"`
	FirstTrailerID   *int64   `json:"firstTrailerId,omitempty"`
	SecondTrailerID  *int64   `json:"secondTrailerId,omitempty"`
	DollyID          *int64   `json:"dollyId,omitempty"`
	FlatbedID        *int64   `json:"flatbedId,omitempty"`
	MainPlate        string   `json:"mainPlate"`
	AdditionalPlates []string `json:"additionalPlates,omitempty" validate:"max=10"`
	Length           float64  `json:"length" validate:"min=0"`
	Width            float64  `json:"width" validate:"min=0"`
	Height           float64  `json:"height" validate:"min=0"`
	CargoType        string   `json:"cargoType"`
	States           []string `json:"states"`
	Comments         *string  `json:"comments,omitempty"`
}

func (req licenseRequest) input() appLicense.Input {
	return appLicense.Input{
		TransporterID:    req.TransporterID,
		LicenseType:      req.LicenseType,
		TractorUnitID:    req.TractorUnitID,
		FirstTrailerID:   req.FirstTrailerID,
		SecondTrailerID:  req.SecondTrailerID,
		DollyID:          req.DollyID,
		FlatbedID:        req.FlatbedID,
		MainPlate:        req.MainPlate,
		AdditionalPlates: req.AdditionalPlates,
		Length:           req.Length,
		Width:            req.Width,
		Height:           req.Height,
		CargoType:        req.CargoType,
		States:           req.States,
		Comments:         req.Comments,
	}
}

type renewRequest struct {
	State string `json:"state" validate:"required"`
}

type conflictCheckRequest struct {
	States          []string `json:"states" validate:"required,min=1"`
	Plates          []string `json:"plates,omitempty"`
	TractorUnitID   *int64   `json:"tractorUnitId,omitempty"`
	FirstTrailerID  *int64   `json:"firstTrailerId,omitempty"`
	SecondTrailerID *int64   `json:"secondTrailerId,omitempty"`
}

func (s *Server) createLicense(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	l, err := s.licenseSvc.Create(r.Context(), actorFromRequest(r), req.input())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	l, err := s.licenseSvc.CreateDraft(r.Context(), actorFromRequest(r), req.input())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) updateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	var req licenseRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	l, err := s.licenseSvc.UpdateDraft(r.Context(), actorFromRequest(r), id, req.input())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) submitDraft(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	l, err := s.licenseSvc.Submit(r.Context(), actorFromRequest(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) renewLicense(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	var req renewRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	l, err := s.licenseSvc.Renew(r.Context(), actorFromRequest(r), id, req.State)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

func (s *Server) getLicense(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	l, err := s.licenseSvc.Get(r.Context(), actorFromRequest(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

func (s *Server) listLicenses(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	transporterID, err := queryInt64(r, "transporterId")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	filter := license.Filter{TransporterID: transporterID, Search: queryString(r, "search")}
	if v := queryString(r, "status"); v != nil {
		st := license.Status(*v)
		filter.Status = &st
	}
	if v := queryString(r, "state"); v != nil {
		state := strings.ToUpper(*v)
		filter.State = &state
	}
	if v := queryString(r, "draft"); v != nil {
		draft := *v == "true" || *v == "1"
		filter.IsDraft = &draft
	}
	list, err := s.licenseSvc.List(r.Context(), actorFromRequest(r), filter, limit, offset)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"licenses": list})
}

func (s *Server) deleteLicense(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.licenseSvc.Delete(r.Context(), actorFromRequest(r), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictCheckRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	conflicts, err := s.licenseSvc.CheckConflicts(r.Context(), req.States, req.Plates, license.Composition{
		TractorUnitID:   req.TractorUnitID,
		FirstTrailerID:  req.FirstTrailerID,
		SecondTrailerID: req.SecondTrailerID,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"blocked":   len(conflicts) > 0,
		"conflicts": conflicts,
	})
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.licenseSvc.Stats(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
