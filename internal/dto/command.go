package dto

import "encoding/json"

// CommandRequest is the generic command envelope accepted by the command endpoint.
type CommandRequest struct {
	Operation string          `json:"operation" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// CommandVoteRequest is the payload of voteOnChangeRequest.
type CommandVoteRequest struct {
	RequestID string `json:"requestId" validate:"required"`
	Decision  string `json:"decision" validate:"required,oneof=approve reject"`
}
