package amqp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatewayrtc/core/pkg/signaling"
)

type noopCallbacks struct{}

func (noopCallbacks) IncomingRequest(signaling.TransportName, signaling.TransportInstance, signaling.ReplyToken, bool, json.RawMessage) {
}
func (noopCallbacks) TransportGone(signaling.TransportName, signaling.TransportInstance) {}
func (noopCallbacks) IsAPISecretNeeded() bool                                            { return false }
func (noopCallbacks) IsAPISecretValid(string) bool                                       { return true }
func (noopCallbacks) IsAuthTokenNeeded() bool                                            { return false }
func (noopCallbacks) IsAuthTokenValid(string) bool                                       { return true }
func (noopCallbacks) NotifyEvent(string, map[string]interface{})                         {}
func (noopCallbacks) EventsEnabled() bool                                                { return false }

func TestSendMessageWithoutConnectionIsRejected(t *testing.T) {
	tr := New(Config{RequestQueue: "q"}, noopCallbacks{}, nil)

	inst := &replyInstance{replyTo: "reply-to", correlationID: "corr-1"}
	err := tr.SendMessage(context.Background(), inst, nil, false, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, signaling.ErrInvalidRequestPath)
}

func TestSendMessageRejectsWrongInstanceType(t *testing.T) {
	tr := New(Config{RequestQueue: "q"}, noopCallbacks{}, nil)

	err := tr.SendMessage(context.Background(), "not-a-reply-instance", nil, false, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, signaling.ErrInvalidRequestPath)
}

func TestSendMessageRejectsEmptyReplyTo(t *testing.T) {
	tr := New(Config{RequestQueue: "q"}, noopCallbacks{}, nil)

	inst := &replyInstance{replyTo: "", correlationID: "corr-1"}
	err := tr.SendMessage(context.Background(), inst, nil, false, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, signaling.ErrInvalidRequestPath)
}

func TestNameIsAMQP(t *testing.T) {
	tr := New(Config{}, noopCallbacks{}, nil)
	assert.Equal(t, Name, tr.Name())
}
