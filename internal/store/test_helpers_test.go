package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTime returns a fixed UTC instant offset by n seconds.
func testTime(n int) time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
}

func createTestMessage(id string) model.Message {
	return model.Message{
		ID:         id,
		Source:     "gmail",
		Sender:     "Jane <jane@corp.io>",
		Subject:    "Subject " + id,
		Body:       "Body " + id,
		ReceivedAt: testTime(0),
		Flags:      model.Flags{Unread: true},
	}
}

func createTestItem(msgID string) model.ActionItem {
	return model.ActionItem{
		ID:              model.ActionItemID(msgID),
		SourceMessageID: msgID,
		Score: model.ScoreResult{
			Priority:        3,
			PriorityLabel:   "medium",
			Category:        model.CategoryMeeting,
			Risk:            15,
			RiskLevel:       "low",
			Confidence:      0.68,
			MatchedKeywords: []string{"meeting"},
			RiskFactors:     []string{},
			ActionItems:     []string{},
		},
		State:     model.StateNeedsAction,
		CreatedAt: testTime(1),
		UpdatedAt: testTime(1),
	}
}

func createTestPlan(itemID, body string) *model.Plan {
	return &model.Plan{
		ID:           "plan-" + itemID,
		ActionItemID: itemID,
		Body:         body,
		ContentHash:  model.PlanContentHash(itemID, body),
		Revision:     1,
		CreatedAt:    testTime(2),
		UpdatedAt:    testTime(2),
	}
}

func mustSaveMessage(t *testing.T, s *Store, id string) {
	t.Helper()
	if err := s.SaveMessage(context.Background(), createTestMessage(id)); err != nil {
		t.Fatalf("SaveMessage() failed: %v", err)
	}
}

// mustCreateItem stores a message and its needs_action item.
func mustCreateItem(t *testing.T, s *Store, msgID string) model.ActionItem {
	t.Helper()
	item := createTestItem(msgID)
	if err := s.CreateActionItem(context.Background(), createTestMessage(msgID), item); err != nil {
		t.Fatalf("CreateActionItem() failed: %v", err)
	}
	return item
}
