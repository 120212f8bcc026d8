// Package fingerprint implements the at-most-one-build-per-fingerprint
// table: concurrent check-ins of the same root content share a
// single in-flight task, with the second and later callers awaiting the
// first's result.
//
// golang.org/x/sync/singleflight's Group is exactly this primitive — a
// process-wide map from key to in-flight call, deduplicated execution,
// shared result delivery to all waiters — so it is used directly rather
// than hand-rolled with a channel or mutex-guarded map.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/sync/singleflight"

	"tangram.systems/checkin/internal/objectid"
)

// Fingerprint identifies an in-flight check-in for deduplication. It is a
// canonical-content fingerprint (root-relative entry path plus the content
// hash of the entry), not a raw path — two callers checking in the same
// content from different paths, or the same path with only its mtime
// touched, must still collapse onto one in-flight build.
type Fingerprint string

// Compute derives a Fingerprint from the entry's root-relative path and its
// scanned content digest.
func Compute(relPath string, contentDigest [28]byte) Fingerprint {
	sum := sha256.Sum256([]byte(relPath + "\x00" + hex.EncodeToString(contentDigest[:])))
	return Fingerprint(fmt.Sprintf("fp_%x", sum[:16]))
}

// Result is what a deduplicated check-in produces: the artifact ID of the
// requested entry point, and whether the in-flight result was delivered to
// more than one caller (true for the caller that did the work as well as for
// those that waited on it).
type Result struct {
	ArtifactID objectid.ID
	Shared     bool
}

// Table deduplicates concurrent check-ins by Fingerprint.
type Table struct {
	group singleflight.Group
}

// NewTable creates an empty dedup table.
func NewTable() *Table { return &Table{} }

// Do runs fn for fp if no call for fp is already in flight; otherwise it
// waits for the in-flight call's result. Table entries expire as soon as
// the call completes; there is no separate cache beyond the in-flight
// window.
func (t *Table) Do(fp Fingerprint, fn func() (objectid.ID, error)) (Result, error) {
	v, err, shared := t.group.Do(string(fp), func() (any, error) {
		return fn()
	})
	if err != nil {
		return Result{}, err
	}
	return Result{ArtifactID: v.(objectid.ID), Shared: shared}, nil
}

// Forget removes fp from the table immediately, used by callers that
// cancel: if this caller was the last waiter, the in-flight work should be
// allowed to terminate rather than linger registered. The actual
// cancellation signal flows through the context passed into fn; Forget
// only drops the bookkeeping entry.
func (t *Table) Forget(fp Fingerprint) {
	t.group.Forget(string(fp))
}
