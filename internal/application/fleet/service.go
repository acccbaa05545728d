package fleet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aet-hub/aet-hub/internal/apperr"
	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
)

// Service manages transporters and their vehicles.
type Service struct {
	transporters transporter.Repository
	vehicles     vehicle.Repository
	logger       zerolog.Logger
}

// NewService creates a fleet service.
func NewService(transporters transporter.Repository, vehicles vehicle.Repository, logger zerolog.Logger) *Service {
	return &Service{
		transporters: transporters,
		vehicles:     vehicles,
		logger:       logger.With().Str("service", "fleet").Logger(),
	}
}

// TransporterInput defines transporter creation input.
type TransporterInput struct {
	OwnerUserID *uuid.UUID
	Name        string
	TaxID       string
	Email       string
	Phone       string
}

// VehicleInput defines vehicle creation input.
type VehicleInput struct {
	TransporterID int64
	Plate         string
	Type          vehicle.Type
	Brand         string
	Model         string
	Year          int
	Renavam       string
}

func (s *Service) CreateTransporter(ctx context.Context, actor user.Actor, input TransporterInput) (*transporter.Transporter, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeValidation, "name is required")
	}
	taxID, err := transporter.NormalizeTaxID(input.TaxID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "invalid tax id")
	}
	owner := actor.UserID
	if input.OwnerUserID != nil {
		if !actor.Role.IsStaff() && *input.OwnerUserID != actor.UserID {
			return nil, apperr.New(apperr.CodeForbidden, "cannot create transporter for another user")
		}
		owner = *input.OwnerUserID
	}
	existing, err := s.transporters.GetByTaxID(ctx, taxID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.CodeValidation, "tax id already registered")
	}

	now := time.Now().UTC()
	t := &transporter.Transporter{
		OwnerUserID: owner,
		Name:        name,
		TaxID:       taxID,
		Email:       strings.TrimSpace(input.Email),
		Phone:       strings.TrimSpace(input.Phone),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.transporters.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("transporter_id", t.ID).Str("actor", actor.ActorString()).Msg("transporter created")
	return t, nil
}

// GetTransporter returns a transporter visible to actor.
func (s *Service) GetTransporter(ctx context.Context, actor user.Actor, id int64) (*transporter.Transporter, error) {
	t, err := s.transporters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || !canSee(actor, t) {
		return nil, apperr.Newf(apperr.CodeNotFound, "transporter %d not found", id)
	}
	return t, nil
}

func (s *Service) ListTransporters(ctx context.Context, actor user.Actor, filter transporter.Filter, limit, offset int) ([]*transporter.Transporter, error) {
	if !actor.Role.IsStaff() {
		filter.OwnerUserID = &actor.UserID
	}
	return s.transporters.List(ctx, filter, limit, offset)
}

func (s *Service) CreateVehicle(ctx context.Context, actor user.Actor, input VehicleInput) (*vehicle.Vehicle, error) {
	if err := vehicle.ValidateType(input.Type); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "invalid vehicle type")
	}
	plate, err := vehicle.NormalizePlate(input.Plate)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "invalid plate")
	}
	if _, err := s.GetTransporter(ctx, actor, input.TransporterID); err != nil {
		return nil, err
	}
	existing, err := s.vehicles.GetByPlate(ctx, plate)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Newf(apperr.CodeValidation, "plate %s already registered", plate)
	}

	now := time.Now().UTC()
	v := &vehicle.Vehicle{
		TransporterID: input.TransporterID,
		Plate:         plate,
		Type:          input.Type,
		Brand:         strings.TrimSpace(input.Brand),
		Model:         strings.TrimSpace(input.Model),
		Year:          input.Year,
		Renavam:       strings.TrimSpace(input.Renavam),
		Status:        vehicle.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.vehicles.Create(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("vehicle_id", v.ID).Str("plate", plate).Str("actor", actor.ActorString()).Msg("vehicle created")
	return v, nil
}

// GetVehicle returns a vehicle whose transporter is visible to actor.
func (s *Service) GetVehicle(ctx context.Context, actor user.Actor, id int64) (*vehicle.Vehicle, error) {
	v, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "vehicle %d not found", id)
	}
	if _, err := s.GetTransporter(ctx, actor, v.TransporterID); err != nil {
		return nil, apperr.Newf(apperr.CodeNotFound, "vehicle %d not found", id)
	}
	return v, nil
}

// ListVehicles lists vehicles. Non-staff callers must name one of their transporters.
func (s *Service) ListVehicles(ctx context.Context, actor user.Actor, filter vehicle.Filter, limit, offset int) ([]*vehicle.Vehicle, error) {
	if !actor.Role.IsStaff() {
		if filter.TransporterID == nil {
			return nil, apperr.New(apperr.CodeValidation, "transporterId is required")
		}
		if _, err := s.GetTransporter(ctx, actor, *filter.TransporterID); err != nil {
			return nil, err
		}
	}
	return s.vehicles.List(ctx, filter, limit, offset)
}

func canSee(actor user.Actor, t *transporter.Transporter) bool {
	return actor.Role.IsStaff() || t.OwnerUserID == actor.UserID
}
