package client

import "time"

// Approval result statuses.
const (
	StatusApproved = "approved"
	StatusDeclined = "declined"
	StatusFailed   = "failed"
)

// DeathRecord is the death certificate form. DateTimeOfDeath accepts
// RFC 3339 or "2006-01-02T15:04".
type DeathRecord struct {
	FullName        string `json:"fullName"`
	IC              string `json:"ic"`
	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	DateTimeOfDeath string `json:"dateTimeOfDeath"`
	Race            string `json:"race"`
	LastAddress     string `json:"lastAddress"`
	PlaceOfDeath    string `json:"placeOfDeath"`
	CauseOfDeath    string `json:"causeOfDeath"`
}

// PendingRecord is a submission waiting for approval.
type PendingRecord struct {
	IC               string `json:"ic"`
	ContentAddress   string `json:"cid"`
	SubmitterAddress string `json:"submitterAddress,omitempty"`
	CreatedAt        int64  `json:"timestamp"` // ms since epoch
	Status           string `json:"status"`
}

// Submission is returned by Submit and SubmitDocument.
type Submission struct {
	Pending    PendingRecord `json:"pending"`
	GatewayURL string        `json:"gateway_url"`
	Message    string        `json:"message"`
}

// PendingView is one entry of the approval queue.
type PendingView struct {
	IC               string    `json:"ic"`
	ContentAddress   string    `json:"cid"`
	SubmitterAddress string    `json:"submitter_address,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Status           string    `json:"status"`
	InFlight         bool      `json:"in_flight"`
	GatewayURL       string    `json:"gateway_url"`
}

// ApprovalResult is returned by Approve.
type ApprovalResult struct {
	ContentAddress string `json:"cid"`
	IC             string `json:"ic"`
	Status         string `json:"status"`
	TxHash         string `json:"tx_hash,omitempty"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	Message        string `json:"message"`
}

// Certificate is a certificate recorded on the ledger.
type Certificate struct {
	IC               string    `json:"ic"`
	ID               string    `json:"id"`
	ContentAddress   string    `json:"cid"`
	IsValid          bool      `json:"is_valid"`
	SubmitterAddress string    `json:"submitter_address"`
	Timestamp        time.Time `json:"timestamp"`
	GatewayURL       string    `json:"gateway_url"`
}

// Roles are the ledger roles held by an account.
type Roles struct {
	IsAdmin     bool `json:"is_admin"`
	IsAuthority bool `json:"is_authority"`
	IsFamily    bool `json:"is_family"`
}

// RoleUpdate is returned by ManageRole.
type RoleUpdate struct {
	Action  string `json:"action"`
	Target  string `json:"target"`
	TxHash  string `json:"tx_hash"`
	Message string `json:"message"`
}

// Wallet lists the accounts of the registry's wallet provider.
type Wallet struct {
	Accounts []string `json:"accounts"`
	Primary  string   `json:"primary"`
}

// AuditEntry is one link of the audit chain.
type AuditEntry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// AuditPage is the audit log overview with a page of entries.
type AuditPage struct {
	Count   int          `json:"count"`
	Root    string       `json:"root"`
	Entries []AuditEntry `json:"entries"`
}

// AuditVerification reports the integrity of the audit chain.
type AuditVerification struct {
	Valid       bool   `json:"valid"`
	BrokenIndex int    `json:"broken_index,omitempty"`
	Error       string `json:"error,omitempty"`
}
