package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meshkit/clientgw/ids"
)

func TestCreateRejectionResponse(t *testing.T) {
	factory := NewFactory()
	original := &Message{
		Category:      CategoryRequest,
		Direction:     DirectionRequest,
		TargetActor:   ids.NewClientId("alice"),
		CorrelationID: "corr-1",
	}

	rejection := factory.CreateRejectionResponse(original, RejectionConnectionFailed, "dial failed", errors.New("boom"))

	assert.Equal(t, CategoryUnrecoverable, rejection.Category)
	assert.Equal(t, DirectionResponse, rejection.Direction)
	assert.Equal(t, original.TargetActor, rejection.TargetActor)
	assert.Equal(t, original.CorrelationID, rejection.CorrelationID)
	assert.Contains(t, string(rejection.Body), "dial failed")
	assert.Contains(t, string(rejection.Body), "boom")
}

func TestCreateRejectionResponseNoCause(t *testing.T) {
	factory := NewFactory()
	original := &Message{TargetActor: ids.NewClientId("bob"), CorrelationID: "corr-2"}

	rejection := factory.CreateRejectionResponse(original, RejectionNoGatewaysAvailable, "no gateways", nil)

	assert.Equal(t, "no gateways", string(rejection.Body))
}

func TestMessageResetAndPinned(t *testing.T) {
	ep := ids.NewEndpoint("host:1", 1)
	m := &Message{TargetEndpoint: &ep, Body: []byte("x")}
	assert.True(t, m.Pinned())

	m.Reset()
	assert.False(t, m.Pinned())
	assert.Empty(t, m.Body)
}
