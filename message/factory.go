package message

import "fmt"

// Factory builds synthetic responses the message center routes back through
// its own inbound path, most notably rejections (§4.4, §7).
type Factory interface {
	CreateRejectionResponse(original *Message, kind RejectionKind, reason string, cause error) *Message
}

type defaultFactory struct{}

// NewFactory returns the default Factory, which stamps rejections with
// category Unrecoverable and direction Response, carrying the reason (and,
// if present, the wrapped cause) as the message body.
func NewFactory() Factory {
	return defaultFactory{}
}

func (defaultFactory) CreateRejectionResponse(original *Message, kind RejectionKind, reason string, cause error) *Message {
	body := reason
	if cause != nil {
		body = fmt.Sprintf("%s: %v", reason, cause)
	}

	rejection := &Message{
		Category:      CategoryUnrecoverable,
		Direction:     DirectionResponse,
		TargetActor:   original.TargetActor,
		CorrelationID: original.CorrelationID,
		Body:          []byte(body),
	}
	_ = kind // kind is not recorded on the rejection; the body carries only reason and cause.
	return rejection
}
