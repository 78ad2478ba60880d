package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Domain prefixes for content hashes. The version suffix allows the
// algorithm to change without colliding with stored hashes.
const (
	DomainPlan  = "aiemployee/plan/v1"
	DomainScore = "aiemployee/score/v1"
)

// actionItemNamespace scopes ActionItem UUIDv5 derivation.
var actionItemNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:aiemployee:action-item"))

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ActionItemID derives the ActionItem ID from its source message ID.
// The same message always maps to the same item.
func ActionItemID(sourceMessageID string) string {
	return uuid.NewSHA1(actionItemNamespace, []byte(sourceMessageID)).String()
}

// PlanContentHash hashes a plan body bound to its action item.
// Approval re-computes the hash to detect out-of-band edits.
func PlanContentHash(actionItemID, body string) string {
	canonical, err := MarshalCanonical(map[string]any{
		"action_item_id": actionItemID,
		"body":           body,
	})
	if err != nil {
		// Only strings are marshaled; this cannot fail.
		panic(fmt.Sprintf("PlanContentHash: %v", err))
	}
	return hashWithDomain(DomainPlan, canonical)
}

// ScoreFingerprint hashes the comparable fields of a score result.
// Replay uses it to detect scoring drift between runs.
func ScoreFingerprint(s ScoreResult) (string, error) {
	canonical, err := MarshalCanonical(s.canonicalFields())
	if err != nil {
		return "", fmt.Errorf("ScoreFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScore, canonical), nil
}
