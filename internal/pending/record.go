package pending

import (
	"errors"
	"fmt"
	"time"
)

// DefaultSlot is the slot name the record set is stored under.
const DefaultSlot = "pendingCertificates"

// Status is the approval state of a pending record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
)

// Valid reports whether s is one of the persisted statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusProcessing
}

var (
	// ErrNotFound is returned when no record matches the content address.
	ErrNotFound = errors.New("pending certificate not found")
	// ErrDuplicate is returned by Add when the content address or IC is already queued.
	ErrDuplicate = errors.New("pending certificate already exists")
	// ErrInFlight is returned by Acquire when an approval for the record is already running.
	ErrInFlight = errors.New("approval already in progress")
	// ErrInvalidStatus is returned by UpdateStatus for an unknown status value.
	ErrInvalidStatus = errors.New("invalid pending status")
)

// Record is a submission awaiting approval. The JSON shape matches the slot
// format written by earlier browser clients, so existing exports load as-is.
type Record struct {
	IC               string `json:"ic"`
	ContentAddress   string `json:"cid"`
	SubmitterAddress string `json:"submitterAddress,omitempty"`
	CreatedAt        int64  `json:"timestamp"` // ms since epoch
	Status           Status `json:"status"`
}

// Created returns CreatedAt as a time.Time.
func (r Record) Created() time.Time {
	return time.UnixMilli(r.CreatedAt).UTC()
}

func (r Record) String() string {
	return fmt.Sprintf("%s (ic=%s, status=%s)", r.ContentAddress, r.IC, r.Status)
}
