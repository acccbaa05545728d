package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/aet-hub/aet-hub/internal/apperr"
	appHistory "github.com/aet-hub/aet-hub/internal/application/history"
	"github.com/aet-hub/aet-hub/internal/domain/ledger"
	"github.com/aet-hub/aet-hub/internal/domain/license"
	"github.com/aet-hub/aet-hub/internal/domain/user"
)

func (s *Server) listIssuedLicenses(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 500)
	transporterID, err := queryInt64(r, "transporterId")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	filter := ledger.Filter{TransporterID: transporterID, AETNumber: queryString(r, "aetNumber")}
	if v := queryString(r, "state"); v != nil {
		state := strings.ToUpper(*v)
		filter.State = &state
	}
	if v := queryString(r, "status"); v != nil {
		st := ledger.Status(*v)
		filter.Status = &st
	}
	if v := queryString(r, "plate"); v != nil {
		plate := license.NormalizePlate(*v)
		filter.Plate = &plate
	}

	actor := actorFromRequest(r)
	if actor.Role == user.RoleUser {
		if filter.TransporterID == nil {
			s.respondErr(w, r, apperr.New(apperr.CodeValidation, "transporterId is required"))
			return
		}
		if _, err := s.fleetSvc.GetTransporter(r.Context(), actor, *filter.TransporterID); err != nil {
			s.respondErr(w, r, err)
			return
		}
	}

	entries, err := s.ledgerSvc.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"issuedLicenses": entries})
}

func (s *Server) reconcileLedger(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		s.respondErr(w, r, apperr.New(apperr.CodeDependency, "reconciler is not configured"))
		return
	}
	res, err := s.reconciler.Run(r.Context())
	// Per-state sync failures still produce a result; anything else aborted the run.
	if err != nil && res.Failed == 0 {
		s.respondErr(w, r, apperr.Wrap(apperr.CodeDependency, err, "ledger reconcile failed"))
		return
	}
	body := map[string]interface{}{"result": res}
	if err != nil {
		var messages []string
		for _, e := range multierr.Errors(err) {
			messages = append(messages, e.Error())
		}
		body["errors"] = messages
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if _, err := s.licenseSvc.Get(r.Context(), actorFromRequest(r), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	var state *string
	if v := queryString(r, "state"); v != nil {
		upper := strings.ToUpper(*v)
		state = &upper
	}
	entries, err := s.historySvc.List(r.Context(), id, state)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

func (s *Server) verifyHistory(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	historyID, err := uuid.Parse(chi.URLParam(r, "historyId"))
	if err != nil {
		s.respondErr(w, r, apperr.New(apperr.CodeValidation, "invalid historyId"))
		return
	}
	if _, err := s.licenseSvc.Get(r.Context(), actorFromRequest(r), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	valid, err := s.historySvc.Verify(r.Context(), id, historyID)
	switch {
	case errors.Is(err, appHistory.ErrNotFound):
		s.respondErr(w, r, apperr.Wrap(apperr.CodeNotFound, err, err.Error()))
		return
	case errors.Is(err, appHistory.ErrNoSigningKey):
		s.respondErr(w, r, apperr.Wrap(apperr.CodeDependency, err, err.Error()))
		return
	case err != nil:
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"historyId": historyID, "valid": valid})
}
