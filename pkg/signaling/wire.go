package signaling

import "encoding/json"

// response is the outer envelope every reply shares (spec §6 "Wire
// format"). Verb handlers build one of the helpers below; the dispatcher
// never hand-assembles the map itself.
type response struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction"`
	SessionID   uint64          `json:"session_id,omitempty"`
	HandleID    uint64          `json:"handle_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Plugindata  json.RawMessage `json:"plugindata,omitempty"`
	Jsep        json.RawMessage `json:"jsep,omitempty"`
	Hint        string          `json:"hint,omitempty"`
	Error       *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code   Code   `json:"code"`
	Reason string `json:"reason"`
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// every value passed through this helper is one of our own
		// structs/maps; a marshal failure here means a programmer error,
		// not bad input.
		panic(err)
	}
	return b
}

func successData(transaction string, sessionID uint64, data interface{}) json.RawMessage {
	return mustMarshal(response{Janus: "success", Transaction: transaction, SessionID: sessionID, Data: mustMarshal(data)})
}

func successEmpty(transaction string, sessionID uint64) json.RawMessage {
	return mustMarshal(response{Janus: "success", Transaction: transaction, SessionID: sessionID})
}

func ackResponse(transaction string, sessionID, handleID uint64, hint string) json.RawMessage {
	return mustMarshal(response{Janus: "ack", Transaction: transaction, SessionID: sessionID, HandleID: handleID, Hint: hint})
}

func pongResponse(transaction string) json.RawMessage {
	return mustMarshal(response{Janus: "pong", Transaction: transaction})
}

func serverInfoResponse(transaction string, data interface{}) json.RawMessage {
	return mustMarshal(response{Janus: "server_info", Transaction: transaction, Data: mustMarshal(data)})
}

func eventResponse(transaction string, sessionID, handleID uint64, pluginData, jsep json.RawMessage) json.RawMessage {
	return mustMarshal(response{Janus: "event", Transaction: transaction, SessionID: sessionID, HandleID: handleID, Plugindata: pluginData, Jsep: jsep})
}

func errorResponse(transaction string, sessionID uint64, apiErr *APIError) json.RawMessage {
	return mustMarshal(response{
		Janus:       "error",
		Transaction: transaction,
		SessionID:   sessionID,
		Error:       &wireError{Code: apiErr.Code, Reason: apiErr.Reason},
	})
}
