package notification

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageEnvelope(t *testing.T) {
	msg, err := NewMessage(EventStatusUpdate, StatusUpdate{LicenseID: 7, State: "SP", Status: "approved"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, "STATUS_UPDATE", decoded["type"])
	data := decoded["data"].(map[string]any)
	assert.Equal(t, float64(7), data["licenseId"])
	assert.Equal(t, "SP", data["state"])
	assert.NotEmpty(t, msg.ID)
}

func TestClientSend(t *testing.T) {
	t.Run("full buffer drops", func(t *testing.T) {
		c := NewClient("c1", nil, 1)
		msg, _ := NewMessage(EventDashboardUpdate, nil)

		require.NoError(t, c.Send(msg))
		assert.ErrorIs(t, c.Send(msg), ErrChannelFull)
	})

	t.Run("send after close does not panic", func(t *testing.T) {
		c := NewClient("c2", nil, 1)
		c.Close()
		c.Close()

		msg, _ := NewMessage(EventDashboardUpdate, nil)
		assert.ErrorIs(t, c.Send(msg), ErrClientClosed)
		assert.True(t, c.Closed())

		_, open := <-c.Messages()
		assert.False(t, open)
	})
}
