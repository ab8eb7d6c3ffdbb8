package models

import "time"

// Ledger reason tags. Sweeper-initiated settlements carry the _sweep suffix so
// an auditor can tell which entry point applied them.
const (
	ReasonEscrow               = "escrow"
	ReasonPayoutCoinflip       = "payout_coinflip"
	ReasonPayoutCoinflipSweep  = "payout_coinflip_sweep"
	ReasonPayoutDice           = "payout_dice"
	ReasonPayoutDiceSweep      = "payout_dice_sweep"
	ReasonRefundDrawCoinflip   = "refund_draw_coinflip"
	ReasonRefundWaitingCleanup = "refund_waiting_cleanup"
	ReasonRefundRoomDeleted    = "refund_room_deleted"
	ReasonRefundPlayerLeft     = "refund_player_left"
	ReasonRefundDiceUnstarted  = "refund_dice_unstarted_idle"
)

// BalanceLog is one append-only ledger entry. Entries are never updated or
// deleted; the deltas of a room must net to zero once the room is terminal.
type BalanceLog struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string    `gorm:"not null;index" json:"user_id"`
	RoomID       string    `gorm:"index" json:"room_id"`
	Delta        float64   `gorm:"not null" json:"delta"`
	Reason       string    `gorm:"type:varchar(48);not null" json:"reason"`
	BalanceAfter float64   `gorm:"not null" json:"balance_after"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}
