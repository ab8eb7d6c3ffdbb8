package models

import (
	"time"
)

// Game types supported by the room engine.
const (
	GameCoinflip = "coinflip"
	GameDice     = "dice"
)

// Room statuses.
const (
	RoomWaiting   = "waiting"
	RoomActive    = "active"
	RoomFinished  = "finished"
	RoomCancelled = "cancelled"
)

// RoomPlayer is one seat in a room, ordered by join time.
type RoomPlayer struct {
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
	Ready    bool      `json:"ready"`
	// Side is the pre-picked option for games that need one (coinflip: heads/tails).
	Side string `json:"side,omitempty"`
}

// PendingCoin holds a computed flip awaiting its reveal deadline.
type PendingCoin struct {
	Result       string    `json:"result"`
	WinnerUserID string    `json:"winnerUserId,omitempty"`
	RevealAt     time.Time `json:"revealAt"`
}

// CoinflipState is the coinflip variant of the metadata union.
type CoinflipState struct {
	// Sides maps userId -> heads|tails. The joiner always gets the owner's opposite.
	Sides   map[string]string `json:"sides"`
	Result  string            `json:"result,omitempty"`
	Pending *PendingCoin      `json:"pending,omitempty"`
}

// DiceRoll is one committed roll. Nonce is the value the draw actually
// consumed; a leaver's discarded pending roll leaves a gap, so it cannot be
// reconstructed from the roll's position.
type DiceRoll struct {
	UserID string `json:"userId"`
	Value  int    `json:"value"`
	Nonce  int    `json:"nonce"`
}

// PendingRoll holds a drawn-but-uncommitted roll. It doubles as the turn lock:
// no new roll is accepted while one is pending.
type PendingRoll struct {
	UserID   string    `json:"userId"`
	Value    int       `json:"value"`
	Nonce    int       `json:"nonce"`
	RevealAt time.Time `json:"revealAt"`
	// AdvanceAt is when the turn may be force-advanced (>= RevealAt).
	AdvanceAt time.Time `json:"advanceAt"`
}

// DiceResult is the terminal outcome of a dice room.
type DiceResult struct {
	Max     int      `json:"max"`
	Winners []string `json:"winners"`
	Pot     float64  `json:"pot"`
}

// DiceState is the dice variant of the metadata union.
type DiceState struct {
	Sides            int          `json:"sides"`
	TurnOrder        []string     `json:"turnOrder"`
	CurrentTurnIndex int          `json:"currentTurnIndex"`
	Rolls            []DiceRoll   `json:"rolls"`
	Pending          *PendingRoll `json:"pending,omitempty"`
	Result           *DiceResult  `json:"result,omitempty"`
}

// RoomMetadata is the game-tagged union of transient resolution state plus the
// fairness material shared by every game. Exactly one of Coinflip/Dice is set,
// matching Room.Game.
type RoomMetadata struct {
	// Escrowed flips to true when stakes are captured at start and back only
	// through a payout or refund.
	Escrowed bool `json:"escrowed"`

	// Commit/reveal material. ServerSeed stays redacted in snapshots until the
	// room is finished; ServerSeedReveal is set in the same transition that
	// finishes the room.
	SeedHash         string `json:"seedHash,omitempty"`
	ServerSeed       string `json:"serverSeed,omitempty"`
	ServerSeedReveal string `json:"serverSeedReveal,omitempty"`
	ClientSeed       string `json:"clientSeed,omitempty"`
	NonceStart       int    `json:"nonceStart"`
	Nonce            int    `json:"nonce"`

	Coinflip *CoinflipState `json:"coinflip,omitempty"`
	Dice     *DiceState     `json:"dice,omitempty"`
}

// Room is the central aggregate: one multiplayer wager game from creation to
// terminal state. Finished/cancelled rooms are retained for audit; waiting
// rooms may be hard-deleted.
type Room struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	RoomID string `gorm:"index;not null" json:"roomId"` // short public code, unique among live rooms
	Game   string `gorm:"type:varchar(32);not null;index" json:"game"`

	BetAmount  float64 `gorm:"not null;default:0" json:"betAmount"`
	MaxPlayers int     `gorm:"not null;default:2" json:"maxPlayers"`

	Players  []RoomPlayer  `gorm:"serializer:json" json:"players"`
	Status   string        `gorm:"type:varchar(16);not null;default:'waiting';index" json:"status"`
	Metadata *RoomMetadata `gorm:"serializer:json" json:"metadata"`

	CreatedBy    string `gorm:"not null;index" json:"createdBy"`
	WinnerUserID string `json:"winnerUserId,omitempty"`

	// Version backs the optimistic per-room write serialization; every state
	// transition increments it and checks the value it read.
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime;index"`
}

// IsLive reports whether the room still blocks reuse of its code.
func (r *Room) IsLive() bool {
	return r.Status == RoomWaiting || r.Status == RoomActive
}

// PlayerIndex returns the seat index for userID, or -1.
func (r *Room) PlayerIndex(userID string) int {
	for i, p := range r.Players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

// HasPlayer reports membership, owner included.
func (r *Room) HasPlayer(userID string) bool {
	return r.PlayerIndex(userID) >= 0
}

// PlayerIDs returns userIds in seat order.
func (r *Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		ids = append(ids, p.UserID)
	}
	return ids
}
