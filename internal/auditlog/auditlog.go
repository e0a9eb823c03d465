// Package auditlog keeps a tamper-evident, append-only record of certificate
// lifecycle events: submissions, approvals, failed approvals, deletions and
// role changes.
//
// Entries form a hash chain rooted at a genesis entry whose Hash is GenesisHash.
// Each entry commits to its predecessor's hash with Keccak-256, so editing or
// removing any entry breaks Verify from that index onward.
package auditlog
