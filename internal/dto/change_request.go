package dto

import "github.com/noah-isme/study-planner-api/internal/models"

// VoteDecision values accepted by the vote endpoint.
const (
	VoteApprove = "approve"
	VoteReject  = "reject"
)

// VoteRequest records a member's decision on a change request.
type VoteRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// ChangeRequestView exposes a change request with its approval progress.
type ChangeRequestView struct {
	models.ChangeRequest
	GroupName        string   `json:"groupName"`
	ApprovedBy       []string `json:"approvedBy"`
	AwaitingApproval []string `json:"awaitingApproval"`
	Applied          bool     `json:"applied"`
}
