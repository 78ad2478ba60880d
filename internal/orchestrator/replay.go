package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
	"github.com/khanzadigithubid/AI-Employee-System/internal/scoring"
	"github.com/khanzadigithubid/AI-Employee-System/internal/store"
)

// ReplayStore is the read side replay needs. *store.Store implements it.
type ReplayStore interface {
	ListMessages(ctx context.Context) ([]model.Message, error)
	GetActionItemBySource(ctx context.Context, messageID string) (model.ActionItem, error)
}

// Drift is one message whose stored score differs from a fresh one.
type Drift struct {
	MessageID    string            `json:"message_id"`
	ActionItemID string            `json:"action_item_id"`
	Fields       []string          `json:"fields"`
	Stored       model.ScoreResult `json:"stored"`
	Rescored     model.ScoreResult `json:"rescored"`
}

// ReplayReport summarizes a replay.
type ReplayReport struct {
	Messages int      `json:"messages"`
	Matched  int      `json:"matched"`
	Missing  []string `json:"missing"`
	Drift    []Drift  `json:"drift"`
}

// Clean reports whether every stored score was reproduced.
func (r ReplayReport) Clean() bool {
	return len(r.Drift) == 0 && len(r.Missing) == 0
}

// Replay re-scores every stored message in arrival order and compares
// the result with the score snapshot on its action item.
//
// Known sender domains are rebuilt as replay proceeds, starting from
// the taxonomy's configured domains, so each message sees the same
// directory it saw when it was first processed.
func Replay(ctx context.Context, st ReplayStore, tax scoring.Taxonomy) (ReplayReport, error) {
	domains := scoring.NewDomainSet()
	engine, err := scoring.NewEngine(tax, scoring.WithSenderDirectory(domains))
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	msgs, err := st.ListMessages(ctx)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	rep := ReplayReport{Missing: []string{}, Drift: []Drift{}}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Messages++

		item, err := st.GetActionItemBySource(ctx, msg.ID)
		if errors.Is(err, store.ErrNotFound) {
			rep.Missing = append(rep.Missing, msg.ID)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("replay %s: %w", msg.ID, err)
		}

		fresh := engine.Score(msg.Sender, msg.Subject, msg.Body)
		same, err := sameScore(item.Score, fresh)
		if err != nil {
			return rep, fmt.Errorf("replay %s: %w", msg.ID, err)
		}
		if same {
			rep.Matched++
		} else {
			rep.Drift = append(rep.Drift, Drift{
				MessageID:    msg.ID,
				ActionItemID: item.ID,
				Fields:       diffScores(item.Score, fresh),
				Stored:       item.Score,
				Rescored:     fresh,
			})
		}

		if d := model.SenderDomain(msg.Sender); d != "" {
			domains.Add(d)
		}
	}
	return rep, nil
}

func sameScore(a, b model.ScoreResult) (bool, error) {
	fa, err := model.ScoreFingerprint(a)
	if err != nil {
		return false, err
	}
	fb, err := model.ScoreFingerprint(b)
	if err != nil {
		return false, err
	}
	return fa == fb, nil
}

func diffScores(a, b model.ScoreResult) []string {
	var fields []string
	if a.Priority != b.Priority {
		fields = append(fields, "priority")
	}
	if a.Category != b.Category {
		fields = append(fields, "category")
	}
	if a.Risk != b.Risk {
		fields = append(fields, "risk")
	}
	if basisPoints(a.Confidence) != basisPoints(b.Confidence) {
		fields = append(fields, "confidence")
	}
	if !slices.Equal(a.MatchedKeywords, b.MatchedKeywords) {
		fields = append(fields, "matched_keywords")
	}
	if !slices.Equal(a.RiskFactors, b.RiskFactors) {
		fields = append(fields, "risk_factors")
	}
	if !slices.Equal(a.ActionItems, b.ActionItems) {
		fields = append(fields, "action_items")
	}
	if a.NeedsReply != b.NeedsReply {
		fields = append(fields, "needs_reply")
	}
	if a.Degraded != b.Degraded {
		fields = append(fields, "degraded")
	}
	return fields
}

func basisPoints(f float64) int {
	return int(f*10000 + 0.5)
}
