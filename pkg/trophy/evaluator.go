// Package trophy decides which automatic trophies a user has newly earned in a scope.
package trophy

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hearthquest/quest-engine-common/pkg/domain"
	"github.com/hearthquest/quest-engine-common/pkg/rank"
)

// Facts is the aggregated history trophy requirements are checked against.
// Only approved completions are counted.
type Facts struct {
	QuestTypeCounts map[domain.QuestType]int64
	TagCounts       map[string]int64 // keyed by lower-cased tag
	Earned          map[string]decimal.Decimal
	RankIndex       int
}

// NewFacts aggregates approved completions by quest type and tag.
// Completions whose quest is missing from quests are ignored.
//
// Parameters:
//   - completions: The user's completions in the scope, any status
//   - quests: Quests by ID
//   - earned: Lifetime amount credited per reward type in the scope
//   - rankIndex: Index of the user's current rank on the ladder
func NewFacts(completions []domain.QuestCompletion, quests map[string]*domain.Quest, earned map[string]decimal.Decimal, rankIndex int) Facts {
	f := Facts{
		QuestTypeCounts: make(map[domain.QuestType]int64),
		TagCounts:       make(map[string]int64),
		Earned:          earned,
		RankIndex:       rankIndex,
	}
	if f.Earned == nil {
		f.Earned = make(map[string]decimal.Decimal)
	}

	for i := range completions {
		c := &completions[i]
		if c.Status != domain.CompletionStatusApproved {
			continue
		}
		q, ok := quests[c.QuestID]
		if !ok {
			continue
		}

		f.QuestTypeCounts[q.Type]++

		// A quest tagged twice with the same tag counts once.
		seen := make(map[string]bool, len(q.Tags))
		for _, tag := range q.Tags {
			key := strings.ToLower(tag)
			if seen[key] {
				continue
			}
			seen[key] = true
			f.TagCounts[key]++
		}
	}

	return f
}

// Evaluate returns the IDs of trophies newly earned by userID in scope, in the
// order trophies are declared.
//
// Manual trophies and trophies already held in scope are skipped, so re-running
// Evaluate on an unchanged history returns nothing new.
func Evaluate(userID string, scope domain.Scope, facts Facts, ladder *rank.Ladder, existing []domain.UserTrophy, trophies []domain.Trophy) []string {
	held := make(map[string]bool, len(existing))
	for _, ut := range existing {
		if ut.UserID == userID && ut.Scope == scope {
			held[ut.TrophyID] = true
		}
	}

	var earned []string
	for i := range trophies {
		t := &trophies[i]
		if t.IsManual || held[t.ID] {
			continue
		}
		if satisfied(t, facts, ladder) {
			earned = append(earned, t.ID)
			held[t.ID] = true
		}
	}
	return earned
}

// satisfied reports whether every requirement of t holds.
// A trophy without requirements is never auto-awarded.
func satisfied(t *domain.Trophy, facts Facts, ladder *rank.Ladder) bool {
	if len(t.Requirements) == 0 {
		return false
	}
	for _, req := range t.Requirements {
		if !holds(req, facts, ladder) {
			return false
		}
	}
	return true
}

func holds(req domain.TrophyRequirement, facts Facts, ladder *rank.Ladder) bool {
	switch req.Type {
	case domain.RequirementCompleteQuestType:
		return facts.QuestTypeCounts[domain.QuestType(strings.ToLower(req.Value))] >= req.Count
	case domain.RequirementCompleteQuestTag:
		return facts.TagCounts[strings.ToLower(req.Value)] >= req.Count
	case domain.RequirementEarnTotalReward:
		return facts.Earned[req.Value].GreaterThanOrEqual(decimal.NewFromInt(req.Count))
	case domain.RequirementAchieveRank:
		if ladder == nil {
			return false
		}
		target, ok := ladder.IndexOf(req.Value)
		return ok && facts.RankIndex >= target
	default:
		return false
	}
}
