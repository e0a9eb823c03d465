package model

import (
	"time"

	"github.com/deathcert/registry/internal/pending"
)

// SubmitRequest is the body of POST /api/v1/certificates.
type SubmitRequest struct {
	Record           DeathRecord `json:"record"`
	SubmitterAddress string      `json:"submitter_address,omitempty"`
}

// Submission is the outcome of a successful submission.
type Submission struct {
	Pending    pending.Record `json:"pending"`
	GatewayURL string         `json:"gateway_url"`
	Message    string         `json:"message"`
}

// PendingView is a pending record as returned by the API.
type PendingView struct {
	IC               string         `json:"ic"`
	ContentAddress   string         `json:"cid"`
	SubmitterAddress string         `json:"submitter_address,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	Status           pending.Status `json:"status"`
	InFlight         bool           `json:"in_flight"`
	GatewayURL       string         `json:"gateway_url"`
}

// ApprovalOutcome is the result state of an approval attempt.
type ApprovalOutcome string

const (
	OutcomeApproved ApprovalOutcome = "approved"
	OutcomeDeclined ApprovalOutcome = "declined"
	OutcomeFailed   ApprovalOutcome = "failed"
)

// ApprovalResult is returned by an approval attempt.
type ApprovalResult struct {
	ContentAddress string          `json:"cid"`
	IC             string          `json:"ic"`
	Outcome        ApprovalOutcome `json:"status"`
	TxHash         string          `json:"tx_hash,omitempty"`
	BlockNumber    uint64          `json:"block_number,omitempty"`
	Message        string          `json:"message"`
}

// Certificate is an on-chain certificate as returned by a lookup.
type Certificate struct {
	IC               string    `json:"ic"`
	ID               string    `json:"id"`
	ContentAddress   string    `json:"cid"`
	IsValid          bool      `json:"is_valid"`
	SubmitterAddress string    `json:"submitter_address"`
	Timestamp        time.Time `json:"timestamp"`
	GatewayURL       string    `json:"gateway_url"`
}

// RoleUpdateRequest is the body of POST /api/v1/roles/:action.
type RoleUpdateRequest struct {
	Target string `json:"target" binding:"required"`
}

// RoleUpdateResult is returned after a role change is confirmed.
type RoleUpdateResult struct {
	Action  string `json:"action"`
	Target  string `json:"target"`
	TxHash  string `json:"tx_hash"`
	Message string `json:"message"`
}
