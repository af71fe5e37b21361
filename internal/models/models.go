package models

import "time"

// TransactionType classifies entries in the credit ledger.
type TransactionType string

const (
	TransactionPurchase    TransactionType = "purchase"
	TransactionMessage     TransactionType = "message"
	TransactionPhotoUnlock TransactionType = "photo_unlock"
	TransactionDailyBonus  TransactionType = "daily_bonus"
	TransactionRefund      TransactionType = "refund"
)

// ConversationPhase tracks where a user is in the conversation flow.
type ConversationPhase string

const (
	PhaseOnboarding    ConversationPhase = "onboarding"
	PhaseFreeChat      ConversationPhase = "free_chat"
	PhaseUpsellPending ConversationPhase = "upsell_pending"
)

// Tier is a user's highest-purchased content package.
type Tier string

const (
	TierFree Tier = "free"
	TierOne  Tier = "tier1"
	TierTwo  Tier = "tier2"
	TierVIP  Tier = "vip"
)

type User struct {
	ID            int64
	TelegramID    int64
	Username      string
	DisplayName   string
	IsBlocked     bool
	BlockedReason string
	PushEnabled   bool
	TotalMessages int
	LastActiveAt  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreditAccount struct {
	ID                int64
	UserID            int64
	Balance           int
	LifetimePurchased int
	LifetimeSpent     int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreditTransaction is an immutable append-only ledger entry. The account
// balance is a materialized cache of the per-user amount sum.
type CreditTransaction struct {
	ID          int64
	UserID      int64
	Amount      int
	Type        TransactionType
	Description string
	ReferenceID string
	CreatedAt   time.Time
}

type RateLimitState struct {
	UserID            int64
	MinuteCount       int
	MinuteWindowStart time.Time
	HourCount         int
	HourWindowStart   time.Time
	WarningsCount     int
	TempBlockedUntil  *time.Time
	UpdatedAt         time.Time
}

type PurchaseToken struct {
	ID        int64
	UserID    int64
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

type ConversationState struct {
	UserID              int64
	CurrentState        ConversationPhase
	RelationshipTier    Tier
	MessagesSinceUpsell int
	LastUpsellAt        *time.Time
	UpsellCooldownUntil *time.Time
	UpdatedAt           time.Time
}

type Message struct {
	ID        int64
	UserID    int64
	Role      string
	Content   string
	CreatedAt time.Time
}

type UserMemory struct {
	ID        int64
	UserID    int64
	Content   string
	CreatedAt time.Time
}

type Photo struct {
	ID          int64
	Description string
	StoragePath string
	IsFree      bool
	IsActive    bool
	SortOrder   int
	CreatedAt   time.Time
}

type UnlockedPhoto struct {
	ID           int64
	UserID       int64
	PhotoID      int64
	CreditsSpent int
	CreatedAt    time.Time
}

type CreditPackage struct {
	ID         int64
	Name       string
	Credits    int
	PriceCents int
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Purchase struct {
	ID          int64
	UserID      int64
	PackageID   int64
	ReferenceID string
	AmountCents int
	Credits     int
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DailyNotification struct {
	ID        int64
	UserID    int64
	Date      string
	Message   string
	PhotoID   *int64
	CreatedAt time.Time
}
