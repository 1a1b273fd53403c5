package signaling

import "encoding/json"

// TransportOrigin identifies the transport a Session or Request came from:
// the transport's name (e.g. "http", "websocket", "amqp") plus an opaque
// reference to the specific connection/instance within that transport.
// Per spec §3 invariants, a Session's origin is observed, never rebound.
type TransportOrigin struct {
	Transport TransportName
	Instance  TransportInstance
}

// Request is an immutable description of one inbound API call (spec §3,
// C1). It owns its JSON payload; once constructed it is never mutated.
type Request struct {
	Origin      TransportOrigin
	ReplyToken  ReplyToken
	Admin       bool
	Payload     json.RawMessage

	// parsed lazily and cached; Request itself stays conceptually
	// immutable from the caller's point of view.
	body *requestBody
}

// requestBody is the subset of the wire envelope (spec §6) every verb
// needs to address a session/handle and correlate a transaction.
type requestBody struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction"`
	SessionID   uint64          `json:"session_id,omitempty"`
	HandleID    uint64          `json:"handle_id,omitempty"`
	APISecret   string          `json:"apisecret,omitempty"`
	Token       string          `json:"token,omitempty"`
	AdminSecret string          `json:"admin_secret,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// parse decodes the Payload into the cached requestBody, returning
// ErrInvalidJSON on malformed input. Safe to call repeatedly.
func (r *Request) parse() (*requestBody, error) {
	if r.body != nil {
		return r.body, nil
	}
	var b requestBody
	if err := json.Unmarshal(r.Payload, &b); err != nil {
		return nil, NewAPIError(CodeInvalidJSON, "", ErrInvalidJSON)
	}
	b.Raw = r.Payload
	r.body = &b
	return r.body, nil
}

// sentinelRequest is the singleton used to signal dispatcher shutdown
// (spec §4.1).
var sentinelRequest = &Request{}

func isSentinel(r *Request) bool { return r == sentinelRequest }

// newRequest wraps the arguments as a Request. It takes no reference on the
// transport instance; the Request only stores it.
func newRequest(origin TransportOrigin, replyToken ReplyToken, admin bool, payload json.RawMessage) *Request {
	return &Request{
		Origin:     origin,
		ReplyToken: replyToken,
		Admin:      admin,
		Payload:    payload,
	}
}
