package auditlog

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// GenesisHash is the hash of entry 0.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// SystemActor is recorded when no wallet account performed the action.
const SystemActor = "registry"

// Actions recorded by the registry.
const (
	ActionGenesis        = "genesis"
	ActionSubmitted      = "certificate.submitted"
	ActionApproved       = "certificate.approved"
	ActionApprovalFailed = "certificate.approval_failed"
	ActionDeleted        = "certificate.deleted"
	ActionRoleChanged    = "role.changed"
)

// ErrOutOfRange is returned by Get for an index past the chain tip.
var ErrOutOfRange = errors.New("audit entry index out of range")

// Entry is one link of the audit chain. Subject is the content address or
// account the action applied to.
type Entry struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	DataHash  string    `json:"data_hash"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// BrokenChainError reports the first entry that fails verification.
type BrokenChainError struct {
	Index  int
	Reason string
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("audit chain broken at index %d: %s", e.Index, e.Reason)
}

func keccakHex(data []byte) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func hashEntry(e *Entry) string {
	return keccakHex([]byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.Subject, e.Action, e.Actor, e.DataHash, e.PrevHash,
	)))
}

func dataHash(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal audit payload: %w", err)
	}
	return keccakHex(data), nil
}

func genesis(now time.Time) *Entry {
	return &Entry{
		Timestamp: now,
		Action:    ActionGenesis,
		Actor:     SystemActor,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// link checks curr against its predecessor. prev is nil for entry 0.
func link(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return &BrokenChainError{Index: curr.Index, Reason: "genesis hash mismatch"}
		}
		return nil
	}
	if curr.Index != prev.Index+1 {
		return &BrokenChainError{Index: curr.Index, Reason: fmt.Sprintf("follows index %d", prev.Index)}
	}
	if curr.PrevHash != prev.Hash {
		return &BrokenChainError{Index: curr.Index, Reason: "previous hash mismatch"}
	}
	if curr.Hash != hashEntry(curr) {
		return &BrokenChainError{Index: curr.Index, Reason: "entry hash mismatch"}
	}
	return nil
}
