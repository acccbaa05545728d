package fleet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aet-hub/aet-hub/internal/apperr"
	"github.com/aet-hub/aet-hub/internal/domain/transporter"
	"github.com/aet-hub/aet-hub/internal/domain/user"
	"github.com/aet-hub/aet-hub/internal/domain/vehicle"
	vehiclemocks "github.com/aet-hub/aet-hub/internal/domain/vehicle/mocks"
	"github.com/aet-hub/aet-hub/internal/infrastructure/memory"
)

func TestCreateTransporterAndVehicle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Transporters(), store.Vehicles(), zerolog.Nop())
	owner := user.Actor{UserID: uuid.New(), Username: "carrier", Role: user.RoleUser}

	tr, err := svc.CreateTransporter(ctx, owner, TransporterInput{Name: "Carga Pesada", TaxID: "11.222.333/0001-81"})
	require.NoError(t, err)
	assert.Equal(t, "11222333000181", tr.TaxID)
	assert.Equal(t, owner.UserID, tr.OwnerUserID)

	v, err := svc.CreateVehicle(ctx, owner, VehicleInput{TransporterID: tr.ID, Plate: "abc-1d23", Type: vehicle.TypeTractorUnit})
	require.NoError(t, err)
	assert.Equal(t, "ABC1D23", v.Plate)
	assert.Equal(t, vehicle.StatusActive, v.Status)

	_, err = svc.CreateVehicle(ctx, owner, VehicleInput{TransporterID: tr.ID, Plate: "ABC1D23", Type: vehicle.TypeDolly})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}

func TestTransporterVisibility(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Transporters(), store.Vehicles(), zerolog.Nop())
	owner := user.Actor{UserID: uuid.New(), Username: "carrier", Role: user.RoleUser}
	stranger := user.Actor{UserID: uuid.New(), Username: "other", Role: user.RoleUser}
	staff := user.Actor{UserID: uuid.New(), Username: "ops", Role: user.RoleOperational}

	tr, err := svc.CreateTransporter(ctx, owner, TransporterInput{Name: "Carga", TaxID: "52998224725"})
	require.NoError(t, err)

	_, err = svc.GetTransporter(ctx, stranger, tr.ID)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	_, err = svc.GetTransporter(ctx, staff, tr.ID)
	assert.NoError(t, err)

	list, err := svc.ListTransporters(ctx, stranger, transporter.Filter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.CreateVehicle(ctx, stranger, VehicleInput{TransporterID: tr.ID, Plate: "ABC1234", Type: vehicle.TypeTruck})
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

func TestCreateTransporterValidation(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Transporters(), store.Vehicles(), zerolog.Nop())
	actor := user.Actor{UserID: uuid.New(), Username: "carrier", Role: user.RoleUser}

	_, err := svc.CreateTransporter(context.Background(), actor, TransporterInput{Name: "X", TaxID: "123"})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	other := uuid.New()
	_, err = svc.CreateTransporter(context.Background(), actor, TransporterInput{Name: "X", TaxID: "52998224725", OwnerUserID: &other})
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
}

func TestCreateVehicleRejectsInvalidPlateBeforeLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	vehicles := vehiclemocks.NewMockRepository(ctrl)
	svc := NewService(memory.NewStore().Transporters(), vehicles, zerolog.Nop())

	_, err := svc.CreateVehicle(context.Background(), user.Actor{Role: user.RoleAdmin}, VehicleInput{TransporterID: 1, Plate: "12", Type: vehicle.TypeTruck})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}
