package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RewardCategory classifies a reward type for fee selection and ranking.
type RewardCategory string

const (
	// RewardCategoryCurrency is a spendable currency (gold, gems, ...).
	RewardCategoryCurrency RewardCategory = "currency"

	// RewardCategoryXP is an experience track. XP can still be exchanged, at the XP fee.
	RewardCategoryXP RewardCategory = "xp"
)

// IsValid returns true if the category is a known category.
func (c RewardCategory) IsValid() bool {
	switch c {
	case RewardCategoryCurrency, RewardCategoryXP:
		return true
	default:
		return false
	}
}

// RewardTypeDefinition is an entry of the reward type registry.
// Definitions are immutable once referenced by a balance or a rate table.
type RewardTypeDefinition struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Category RewardCategory `json:"category"`
	// Precision is the number of decimal places of the smallest unit (0 = whole units).
	Precision int32 `json:"precision"`
}

// RankDefinition is one step of the rank ladder.
type RankDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	XPThreshold int64  `json:"xpThreshold"`
}

// QuestType distinguishes recurring chores from one-off or claimable work.
type QuestType string

const (
	// QuestTypeDuty is a recurring quest (daily, weekly, monthly cadence).
	QuestTypeDuty QuestType = "duty"

	// QuestTypeVenture is a one-off or claim-based quest.
	QuestTypeVenture QuestType = "venture"
)

// IsValid returns true if the quest type is a valid type.
func (t QuestType) IsValid() bool {
	switch t {
	case QuestTypeDuty, QuestTypeVenture:
		return true
	default:
		return false
	}
}

// AvailabilityType defines the recurrence rule of a quest.
//
// Meaning of Quest.AvailabilityCount per type:
//   - daily, weekly, monthly: completions allowed per calendar-day window
//   - frequency: interval in days between occurrence days (one completion per window)
//   - unlimited: lifetime cap (<= 0 means uncapped)
type AvailabilityType string

const (
	AvailabilityDaily     AvailabilityType = "daily"
	AvailabilityWeekly    AvailabilityType = "weekly"
	AvailabilityMonthly   AvailabilityType = "monthly"
	AvailabilityFrequency AvailabilityType = "frequency"
	AvailabilityUnlimited AvailabilityType = "unlimited"
)

// IsValid returns true if the availability type is a valid type.
func (a AvailabilityType) IsValid() bool {
	switch a {
	case AvailabilityDaily, AvailabilityWeekly, AvailabilityMonthly, AvailabilityFrequency, AvailabilityUnlimited:
		return true
	default:
		return false
	}
}

// ClaimPolicy controls whether a Venture can be completed by several users in one window.
type ClaimPolicy string

const (
	// ClaimPolicyShared lets every assigned user complete the quest.
	ClaimPolicyShared ClaimPolicy = "shared"

	// ClaimPolicyExclusive makes the first claimer (or completer) in a scope the only one.
	ClaimPolicyExclusive ClaimPolicy = "exclusive"
)

// RewardAmount is an amount of a reward type.
type RewardAmount struct {
	RewardTypeID string          `json:"rewardTypeId"`
	Amount       decimal.Decimal `json:"amount"`
}

// QuestClaim records a user who claimed a Venture from the unclaimed pool.
type QuestClaim struct {
	UserID  string `json:"userId"`
	GuildID string `json:"guildId,omitempty"`
}

// Dismissal is a user-specific "not today" override.
type Dismissal struct {
	UserID string    `json:"userId"`
	Date   time.Time `json:"date"`
}

// Quest is a task users complete for rewards.
// Availability is never stored on the quest; it is recomputed on every query.
type Quest struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	Type                  QuestType        `json:"type"`
	AvailabilityType      AvailabilityType `json:"availabilityType"`
	AvailabilityCount     int              `json:"availabilityCount"`
	WeeklyRecurrenceDays  []time.Weekday   `json:"weeklyRecurrenceDays,omitempty"`
	MonthlyRecurrenceDays []int            `json:"monthlyRecurrenceDays,omitempty"`
	StartDate             *time.Time       `json:"startDate,omitempty"` // Frequency anchor, falls back to CreatedAt
	AssignedUserIDs       []string         `json:"assignedUserIds"`
	RequiresApproval      bool             `json:"requiresApproval"`
	IsOptional            bool             `json:"isOptional"`
	IsActive              bool             `json:"isActive"`
	Rewards               []RewardAmount   `json:"rewards"`
	ClaimPolicy           ClaimPolicy      `json:"claimPolicy,omitempty"`
	Claims                []QuestClaim     `json:"claims,omitempty"`
	Dismissals            []Dismissal      `json:"dismissals,omitempty"`
	GroupID               string           `json:"groupId,omitempty"`
	Tags                  []string         `json:"tags,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
}

// Scope returns the ledger partition the quest belongs to.
func (q *Quest) Scope() Scope {
	if q.GroupID == "" {
		return PersonalScope()
	}
	return GuildScope(q.GroupID)
}

// IsAssignedTo returns true if userID is one of the quest's assignees.
func (q *Quest) IsAssignedTo(userID string) bool {
	for _, id := range q.AssignedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsExclusive returns true if the quest is a single-claim Venture.
func (q *Quest) IsExclusive() bool {
	return q.Type == QuestTypeVenture && q.ClaimPolicy == ClaimPolicyExclusive
}

// HasTag reports whether the quest carries tag (case-insensitive).
func (q *Quest) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// EffectiveStartDate is the date Frequency recurrence counts from.
func (q *Quest) EffectiveStartDate() time.Time {
	if q.StartDate != nil {
		return *q.StartDate
	}
	return q.CreatedAt
}

// CompletionStatus is the approval state of a completion.
type CompletionStatus string

const (
	CompletionStatusPending  CompletionStatus = "pending"
	CompletionStatusApproved CompletionStatus = "approved"
	CompletionStatusRejected CompletionStatus = "rejected"
)

// IsValid returns true if the status is a valid completion status.
func (s CompletionStatus) IsValid() bool {
	switch s {
	case CompletionStatusPending, CompletionStatusApproved, CompletionStatusRejected:
		return true
	default:
		return false
	}
}

// QuestCompletion is an immutable record of a user completing a quest.
// Only Status (and ReviewedAt) change, and only through review. Rows are never deleted.
type QuestCompletion struct {
	ID          string           `json:"id" db:"id"`
	QuestID     string           `json:"questId" db:"quest_id"`
	UserID      string           `json:"userId" db:"user_id"`
	CompletedAt time.Time        `json:"completedAt" db:"completed_at"`
	Status      CompletionStatus `json:"status" db:"status"`
	GuildID     string           `json:"guildId,omitempty" db:"guild_id"`
	ClaimKey    string           `json:"claimKey,omitempty" db:"claim_key"` // set for exclusive Venture completions
	ReviewedAt  *time.Time       `json:"reviewedAt,omitempty" db:"reviewed_at"`
}

// Scope returns the ledger partition the completion was recorded in.
func (c *QuestCompletion) Scope() Scope {
	if c.GuildID == "" {
		return PersonalScope()
	}
	return GuildScope(c.GuildID)
}

// CountsToward reports whether the completion consumes an occurrence of its window.
// Without an approval step a completion is self-approving.
func (c *QuestCompletion) CountsToward(requiresApproval bool) bool {
	if c.Status == CompletionStatusRejected {
		return false
	}
	if requiresApproval {
		return c.Status == CompletionStatusApproved
	}
	return true
}

// ScopeKind is either personal or guild.
type ScopeKind string

const (
	ScopePersonal ScopeKind = "personal"
	ScopeGuild    ScopeKind = "guild"
)

// Scope is the ledger partition a balance, completion or user trophy belongs to.
type Scope struct {
	Kind    ScopeKind `json:"kind"`
	GuildID string    `json:"guildId,omitempty"`
}

// PersonalScope returns the personal scope.
func PersonalScope() Scope {
	return Scope{Kind: ScopePersonal}
}

// GuildScope returns the scope of guild guildID.
func GuildScope(guildID string) Scope {
	return Scope{Kind: ScopeGuild, GuildID: guildID}
}

// Key is the canonical string form used by stores ("personal" or "guild:<id>").
func (s Scope) Key() string {
	if s.Kind == ScopeGuild {
		return "guild:" + s.GuildID
	}
	return string(ScopePersonal)
}

// ParseScopeKey is the inverse of Scope.Key.
func ParseScopeKey(key string) Scope {
	if id, ok := strings.CutPrefix(key, "guild:"); ok {
		return GuildScope(id)
	}
	return PersonalScope()
}

// Balance is one (user, scope, reward type) row of the ledger.
type Balance struct {
	UserID       string          `json:"userId" db:"user_id"`
	Scope        Scope           `json:"scope"`
	RewardTypeID string          `json:"rewardTypeId" db:"reward_type_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Earned       decimal.Decimal `json:"earned" db:"earned"` // lifetime total credited by settlement
	UpdatedAt    time.Time       `json:"updatedAt" db:"updated_at"`
}

// TrophyRequirementType is the kind of condition a trophy checks.
type TrophyRequirementType string

const (
	RequirementCompleteQuestType TrophyRequirementType = "complete_quest_type"
	RequirementEarnTotalReward   TrophyRequirementType = "earn_total_reward"
	RequirementAchieveRank       TrophyRequirementType = "achieve_rank"
	RequirementCompleteQuestTag  TrophyRequirementType = "complete_quest_tag"
)

// IsValid returns true if the requirement type is known.
func (t TrophyRequirementType) IsValid() bool {
	switch t {
	case RequirementCompleteQuestType, RequirementEarnTotalReward, RequirementAchieveRank, RequirementCompleteQuestTag:
		return true
	default:
		return false
	}
}

// TrophyRequirement is one condition of a trophy.
// Value is a quest type, tag, reward type ID or rank ID depending on Type.
type TrophyRequirement struct {
	Type  TrophyRequirementType `json:"type"`
	Value string                `json:"value"`
	Count int64                 `json:"count"`
}

// Trophy is an achievement. All requirements must hold (AND).
type Trophy struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	IsManual     bool                `json:"isManual"`
	Requirements []TrophyRequirement `json:"requirements"`
}

// UserTrophy records an award. At most one row exists per (user, trophy, scope).
type UserTrophy struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	TrophyID  string    `json:"trophyId" db:"trophy_id"`
	Scope     Scope     `json:"scope"`
	AwardedAt time.Time `json:"awardedAt" db:"awarded_at"`
}
