// Package message defines the wire-agnostic Message record the client
// message center routes. Actual on-the-wire encoding lives in transport;
// this package only knows about the fields selection and dispatch need.
package message

import "github.com/meshkit/clientgw/ids"

// Category classifies a Message for handler dispatch (§4.3) and, for
// Unrecoverable, for synthesized rejections (§4.4).
type Category int

const (
	CategoryRequest Category = iota
	CategoryResponse
	CategorySystem
	// CategoryUnrecoverable is the category MessageFactory stamps on
	// synthetic rejection responses routed back through OnReceivedMessage.
	CategoryUnrecoverable
)

func (c Category) String() string {
	switch c {
	case CategoryRequest:
		return "request"
	case CategoryResponse:
		return "response"
	case CategorySystem:
		return "system"
	case CategoryUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Direction says whether a Message expects a reply, is itself a reply, or
// is fire-and-forget.
type Direction int

const (
	DirectionRequest Direction = iota
	DirectionResponse
	DirectionOneWay
)

// RejectionKind enumerates why a rejection is synthesized. It is passed to
// Factory.CreateRejectionResponse; the default Factory does not record it on
// the rejection.
type RejectionKind int

const (
	RejectionNoGatewaysAvailable RejectionKind = iota
	RejectionConnectionFailed
	RejectionRaceLost
	RejectionTargetUnavailable
)

// Message is the opaque record the message center routes. TargetEndpoint is
// nil unless the sender pinned a specific gateway.
type Message struct {
	Category       Category
	Direction      Direction
	TargetActor    ids.ActorId
	TargetEndpoint *ids.Endpoint
	IsUnordered    bool

	// CorrelationID lets RejectMessage's synthetic response be matched
	// back to the original request by whatever waits on the inbound queue.
	CorrelationID string

	// Body is opaque payload bytes; the message center never inspects it.
	Body []byte
}

// Reset clears m to its zero value.
func (m *Message) Reset() {
	*m = Message{}
}

// Pinned reports whether the message names an explicit destination gateway.
func (m *Message) Pinned() bool {
	return m.TargetEndpoint != nil
}
