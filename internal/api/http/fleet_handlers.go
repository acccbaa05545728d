package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/apperr"
	appFleet "github.com/aet-hub/aet-hub/internal/application/fleet"
	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

type transporterCreateRequest struct {
	OwnerUserID *string `json:"ownerUserId,omitempty" validate:"omitempty,uuid"`
	Name        string  `json:"name" validate:"required,max=200"`
	TaxID       string  `json:"taxId" validate:"required"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Phone       string  `json:"phone"`
}

type vehicleCreateRequest struct {
	TransporterID int64  `json:"transporterId" validate:"required,gt=0"`
	Plate         string `json:"plate" validate:"required"`
	Type          string `json:"type" validate:"required"`
	Brand         string `json:"brand"`
	Model         string `json:"model"`
	Year          int    `json:"year" validate:"omitempty,min=1950,max=2100"`
	Renavam       string `json:"renavam"`
}

func (s *Server) createTransporter(w http.ResponseWriter, r *http.Request) {
	var req transporterCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	input := appFleet.TransporterInput{Name: req.Name, TaxID: req.TaxID, Email: req.Email, Phone: req.Phone}
	if req.OwnerUserID != nil {
		id, err := uuid.Parse(*req.OwnerUserID)
		if err != nil {
			s.respondErr(w, r, apperr.New(apperr.CodeValidation, "invalid ownerUserId"))
			return
		}
		input.OwnerUserID = &id
	}
	t, err := s.fleetSvc.CreateTransporter(r.Context(), actorFromRequest(r), input)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

func (s *Server) listTransporters(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	filter := transporter.Filter{Search: queryString(r, "search")}
	if v := r.URL.Query().Get("ownerUserId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			s.respondErr(w, r, apperr.New(apperr.CodeValidation, "invalid ownerUserId"))
			return
		}
		filter.OwnerUserID = &id
	}
	list, err := s.fleetSvc.ListTransporters(r.Context(), actorFromRequest(r), filter, limit, offset)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transporters": list})
}

func (s *Server) getTransporter(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	t, err := s.fleetSvc.GetTransporter(r.Context(), actorFromRequest(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) createVehicle(w http.ResponseWriter, r *http.Request) {
	var req vehicleCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	v, err := s.fleetSvc.CreateVehicle(r.Context(), actorFromRequest(r), appFleet.VehicleInput{
		TransporterID: req.TransporterID,
		Plate:         req.Plate,
		Type:          vehicle.Type(req.Type),
		Brand:         req.Brand,
		Model:         req.Model,
		Year:          req.Year,
		Renavam:       req.Renavam,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	transporterID, err := queryInt64(r, "transporterId")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	filter := vehicle.Filter{TransporterID: transporterID, Plate: queryString(r, "plate")}
	if v := queryString(r, "type"); v != nil {
		t := vehicle.Type(*v)
		filter.Type = &t
	}
	list, err := s.fleetSvc.ListVehicles(r.Context(), actorFromRequest(r), filter, limit, offset)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"vehicles": list})
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	v, err := s.fleetSvc.GetVehicle(r.Context(), actorFromRequest(r), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
