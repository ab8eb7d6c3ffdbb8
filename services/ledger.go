package services

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"pvp-room-system/models"
)

// LedgerService moves funds between user balances and mirrors every movement
// into the append-only balance log. All multi-party methods expect to run
// inside the caller's transaction so a settlement is visible all-or-nothing.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// apply adds delta to one balance and appends the matching ledger entry.
// The balance mutation is a single conditional UPDATE, so two settlements
// racing on the same user serialize on the row without a prior read.
func (l *LedgerService) apply(tx *gorm.DB, userID, roomID string, delta float64, reason string) error {
	query := tx.Model(&models.User{}).Where("id = ?", userID)
	if delta < 0 {
		// Debits must not drive the balance negative.
		query = query.Where("balance >= ?", -delta)
	}
	res := query.Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errNotFound("user %s not found", userID)
		}
		return apiErr(fiber.StatusUnprocessableEntity, CodeInsufficientBalance,
			"user %s has insufficient balance for %.2f", userID, -delta)
	}

	var after float64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Pluck("balance", &after).Error; err != nil {
		return err
	}
	return tx.Create(&models.BalanceLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		RoomID:       roomID,
		Delta:        delta,
		Reason:       reason,
		BalanceAfter: after,
	}).Error
}

// Capture escrows every player's stake for the room. Fails the whole
// transaction if any player cannot cover the bet.
func (l *LedgerService) Capture(tx *gorm.DB, room *models.Room) error {
	if room.BetAmount <= 0 {
		return nil
	}
	for _, p := range room.Players {
		if err := l.apply(tx, p.UserID, room.RoomID, -room.BetAmount, models.ReasonEscrow); err != nil {
			return fmt.Errorf("capture stake for %s: %w", p.UserID, err)
		}
	}
	return nil
}

// PayoutPot splits pot evenly among winners. Exact float division; a 2-way tie
// on a 15 pot pays 7.5 each.
func (l *LedgerService) PayoutPot(tx *gorm.DB, room *models.Room, winners []string, pot float64, reason string) error {
	if pot <= 0 || len(winners) == 0 {
		return nil
	}
	share := pot / float64(len(winners))
	for _, uid := range winners {
		if err := l.apply(tx, uid, room.RoomID, share, reason); err != nil {
			return fmt.Errorf("payout to %s: %w", uid, err)
		}
	}
	return nil
}

// RefundAll returns each player's captured stake.
func (l *LedgerService) RefundAll(tx *gorm.DB, room *models.Room, reason string) error {
	if room.BetAmount <= 0 {
		return nil
	}
	for _, p := range room.Players {
		if err := l.apply(tx, p.UserID, room.RoomID, room.BetAmount, reason); err != nil {
			return fmt.Errorf("refund to %s: %w", p.UserID, err)
		}
	}
	return nil
}

// RoomNet sums all ledger deltas for a room. Zero at terminal state means
// every escrowed unit was paid out or refunded exactly once.
func (l *LedgerService) RoomNet(roomID string) (float64, error) {
	var net float64
	err := l.DB.Model(&models.BalanceLog{}).Where("room_id = ?", roomID).
		Select("COALESCE(SUM(delta), 0)").Scan(&net).Error
	return net, err
}
