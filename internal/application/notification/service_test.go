package notification

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domain "github.com/aet-hub/aet-hub/internal/domain/notification"
	"github.com/aet-hub/aet-hub/internal/domain/notification/mocks"
)

func TestPublishBroadcastsEnvelope(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockHub(ctrl)

	var got *domain.Message
	hub.EXPECT().Broadcast(gomock.Any()).Do(func(msg *domain.Message) { got = msg })
	hub.EXPECT().ClientCount().Return(2)

	svc := NewService(hub, zerolog.Nop())
	svc.Publish(domain.EventStatusUpdate, domain.StatusUpdate{LicenseID: 9, State: "SP", Status: "approved"})

	require.NotNil(t, got)
	assert.Equal(t, domain.EventStatusUpdate, got.Type)
	var envelope struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(got.Payload, &envelope))
	assert.Equal(t, "STATUS_UPDATE", envelope.Type)
	assert.Equal(t, "SP", envelope.Data["state"])
	assert.EqualValues(t, 9, envelope.Data["licenseId"])
}

func TestPublishSkipsUnencodableData(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockHub(ctrl)

	svc := NewService(hub, zerolog.Nop())
	svc.Publish(domain.EventDashboardUpdate, make(chan int))
}

func TestPublishOnNilService(t *testing.T) {
	var svc *Service
	assert.NotPanics(t, func() { svc.Publish(domain.EventDashboardUpdate, nil) })
}
