package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/apperr"
	appUser "github.com/aet-hub/aet-hub/internal/application/user"
	domainUser "github.com/aet-hub/aet-hub/internal/domain/user"
)

type userCreateRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"fullName"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"required,oneof=ADMIN SUPERVISOR OPERATIONAL FINANCIAL USER admin supervisor operational financial user"`
}

type userUpdateRequest struct {
	FullName *string `json:"fullName,omitempty"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Role     *string `json:"role,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type passwordUpdateRequest struct {
	Password string `json:"password" validate:"required"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	u, err := s.userSvc.CreateUser(r.Context(), appUser.CreateInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Email:    req.Email,
		Role:     domainUser.Role(strings.ToUpper(req.Role)),
		Status:   domainUser.StatusActive,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 100, 200)
	filter := domainUser.Filter{Username: queryString(r, "username")}
	if v := r.URL.Query().Get("role"); v != "" {
		role, err := parseRole(v)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		filter.Role = &role
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st := domainUser.Status(strings.ToUpper(v))
		filter.Status = &st
	}
	users, err := s.userSvc.ListUsers(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "userId")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	u, err := s.userSvc.GetUser(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "userId")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	var req userUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	input := appUser.UpdateInput{FullName: req.FullName, Email: req.Email}
	if req.Role != nil {
		role, err := parseRole(*req.Role)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		input.Role = &role
	}
	if req.Status != nil {
		st := domainUser.Status(strings.ToUpper(*req.Status))
		input.Status = &st
	}
	u, err := s.userSvc.UpdateUser(r.Context(), id, input)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) setUserPassword(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "userId")
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	var req passwordUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.userSvc.SetPassword(r.Context(), id, req.Password); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "OK"})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, apperr.Newf(apperr.CodeValidation, "invalid %s", key)
	}
	return id, nil
}

func parseRole(role string) (domainUser.Role, error) {
	r := domainUser.Role(strings.ToUpper(role))
	if err := domainUser.ValidateRole(r); err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, err, err.Error())
	}
	return r, nil
}
