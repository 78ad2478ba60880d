package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionItemID_Deterministic(t *testing.T) {
	a := ActionItemID("gmail:abc")
	b := ActionItemID("gmail:abc")
	c := ActionItemID("gmail:abd")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestPlanContentHash(t *testing.T) {
	h1 := PlanContentHash("item-1", "Thanks, will do.")
	h2 := PlanContentHash("item-1", "Thanks, will do.")
	h3 := PlanContentHash("item-1", "Thanks, will do!")
	h4 := PlanContentHash("item-2", "Thanks, will do.")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.NotEqual(t, h1, h4)
	assert.Len(t, h1, 64)
}

func TestPlanIntact(t *testing.T) {
	p := Plan{ActionItemID: "item-1", Body: "reply"}
	p.ContentHash = PlanContentHash(p.ActionItemID, p.Body)
	assert.True(t, p.Intact())

	p.Body = "edited"
	assert.False(t, p.Intact())
}

func TestHashWithDomain_Separation(t *testing.T) {
	assert.NotEqual(t, hashWithDomain("a", []byte("bc")), hashWithDomain("ab", []byte("c")))
}

func TestScoreFingerprint(t *testing.T) {
	s := ScoreResult{Priority: 3, Category: CategoryMeeting, Risk: 10, Confidence: 0.6}
	f1, err := ScoreFingerprint(s)
	require.NoError(t, err)

	s.Confidence = 0.61
	f2, err := ScoreFingerprint(s)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f2)

	// Nil and empty slices fingerprint the same.
	s.MatchedKeywords = []string{}
	f3, err := ScoreFingerprint(s)
	require.NoError(t, err)
	assert.Equal(t, f2, f3)
}
