package protocol

import (
	"encoding/json"
	"fmt"
)

// EncodeRequest serializes a RequestEnvelope to JSON bytes.
// Returns an error if the envelope is structurally invalid.
func EncodeRequest(req *RequestEnvelope) ([]byte, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("request missing required field: id")
	}

	switch req.Type {
	case KindExecute:
		if req.Script == "" {
			return nil, fmt.Errorf("execute request has empty script")
		}
	case KindGetContext:
		// No payload.
	case KindNotify:
		if req.Message == "" {
			return nil, fmt.Errorf("notify request has empty message")
		}
	default:
		return nil, fmt.Errorf("unknown request type: %q", req.Type)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

// DecodeResponse deserializes a ResponseEnvelope from JSON bytes.
// Returns an error if the data is not valid JSON or the envelope cannot be
// correlated (missing id). Callers drop and log such frames; they are never
// surfaced to a pending request.
func DecodeResponse(data []byte) (*ResponseEnvelope, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response frame")
	}

	var resp ResponseEnvelope
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w", err)
	}

	if resp.ID == "" {
		return nil, fmt.Errorf("response missing required field: id")
	}

	// A failed response should say why; an empty error still settles the
	// pending request, just with a generic message attached upstream.
	return &resp, nil
}
