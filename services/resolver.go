package services

import (
	"time"

	"gorm.io/gorm"

	"pvp-room-system/config"
	"pvp-room-system/fair"
	"pvp-room-system/models"
	"pvp-room-system/utils/logger"
)

// Resolver owns the per-game resolution steps. Live requests and the sweeper
// both call the same methods, so whichever actor crosses a deadline first
// settles the room and the other sees a clean no-op or a version conflict.
type Resolver struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Notifier Publisher
	Engine   *fair.Engine
	Cfg      config.Config
}

func NewResolver(db *gorm.DB, ledger *LedgerService, notifier Publisher, engine *fair.Engine, cfg config.Config) *Resolver {
	return &Resolver{DB: db, Ledger: ledger, Notifier: notifier, Engine: engine, Cfg: cfg}
}

// updateRoomGuarded writes the listed fields only if nobody else has written
// the room since it was read. A losing writer gets ErrConflict and must
// re-fetch; the room struct keeps its original version in that case.
func updateRoomGuarded(tx *gorm.DB, room *models.Room, fields ...string) error {
	prev := room.Version
	room.Version = prev + 1
	res := tx.Model(&models.Room{}).
		Where("id = ? AND version = ?", room.ID, prev).
		Select(append(fields, "version")).
		Updates(room)
	if res.Error != nil {
		room.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		room.Version = prev
		return ErrConflict
	}
	return nil
}

// deleteRoomGuarded hard-deletes the room only if it is still at the version
// the caller read.
func deleteRoomGuarded(tx *gorm.DB, room *models.Room) error {
	res := tx.Where("id = ? AND version = ?", room.ID, room.Version).Delete(&models.Room{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// coinflipReason picks the ledger tag for the entry point that settled.
func coinflipReason(sweep bool) string {
	if sweep {
		return models.ReasonPayoutCoinflipSweep
	}
	return models.ReasonPayoutCoinflip
}

func diceReason(sweep bool) string {
	if sweep {
		return models.ReasonPayoutDiceSweep
	}
	return models.ReasonPayoutDice
}

// FinalizeCoinflip settles an active coinflip whose pending reveal deadline
// has passed. Idempotent: a finished room or a missing pending block is a
// no-op. Returns whether this call performed the settlement.
func (r *Resolver) FinalizeCoinflip(room *models.Room, now time.Time, sweep bool) (bool, error) {
	md := room.Metadata
	if room.Status != models.RoomActive || md == nil || md.Coinflip == nil || md.Coinflip.Pending == nil {
		return false, nil
	}
	pend := md.Coinflip.Pending
	if now.Before(pend.RevealAt) {
		return false, nil
	}

	// The flip was drawn when the pending block was created; recompute
	// defensively if it is somehow missing.
	result := pend.Result
	if result == "" {
		result = fair.Coinflip(md.ServerSeed, md.ClientSeed, md.NonceStart)
	}
	winner := pend.WinnerUserID
	if winner == "" {
		for _, p := range room.Players {
			if md.Coinflip.Sides[p.UserID] == result {
				winner = p.UserID
				break
			}
		}
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		pot := room.BetAmount * 2
		if winner != "" && md.Escrowed {
			if err := r.Ledger.PayoutPot(tx, room, []string{winner}, pot, coinflipReason(sweep)); err != nil {
				return err
			}
		} else if room.BetAmount > 0 && md.Escrowed {
			// Degenerate draw with no holder of the winning side: refund.
			if err := r.Ledger.RefundAll(tx, room, models.ReasonRefundDrawCoinflip); err != nil {
				return err
			}
		}

		md.Coinflip.Result = result
		md.Coinflip.Pending = nil
		md.ServerSeedReveal = md.ServerSeed
		md.Escrowed = false
		room.Status = models.RoomFinished
		room.WinnerUserID = winner
		return updateRoomGuarded(tx, room, "status", "winner_user_id", "metadata")
	})
	if err != nil {
		return false, err
	}

	r.Notifier.ToRoom(room.RoomID, "pvp:roomFinished", SnapshotRoom(room, now))
	r.Notifier.Broadcast("pvp:roomUpdated", map[string]interface{}{"roomId": room.RoomID})
	logger.Infof("[pvp] coinflip %s finished, result=%s winner=%s sweep=%v", room.RoomID, result, winner, sweep)
	return true, nil
}

// AdvanceDice commits a pending roll whose deadline has passed, then either
// moves the turn forward or finalizes the game. Idempotent for rooms with no
// pending state.
func (r *Resolver) AdvanceDice(room *models.Room, now time.Time, sweep bool) (bool, error) {
	md := room.Metadata
	if room.Status != models.RoomActive || md == nil || md.Dice == nil || md.Dice.Pending == nil {
		return false, nil
	}
	pend := md.Dice.Pending
	if now.Before(pend.AdvanceAt) {
		return false, nil
	}

	dice := md.Dice
	if !hasRolled(dice.Rolls, pend.UserID) {
		dice.Rolls = append(dice.Rolls, models.DiceRoll{UserID: pend.UserID, Value: pend.Value, Nonce: pend.Nonce})
	}
	dice.Pending = nil

	order := r.turnOrder(room)
	if len(dice.Rolls) >= len(order) {
		return true, r.finishDice(room, now, sweep)
	}

	dice.CurrentTurnIndex = (dice.CurrentTurnIndex + 1) % len(order)
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		return updateRoomGuarded(tx, room, "metadata")
	})
	if err != nil {
		return false, err
	}
	r.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	return true, nil
}

// AutoRollDice draws the silent current player's turn on their behalf. Used
// only by the sweeper's idle pass; the roll commits immediately with no
// reveal animation window.
func (r *Resolver) AutoRollDice(room *models.Room, now time.Time) (bool, error) {
	md := room.Metadata
	if room.Status != models.RoomActive || md == nil || md.Dice == nil || md.Dice.Pending != nil {
		return false, nil
	}
	dice := md.Dice
	order := r.turnOrder(room)
	if len(order) == 0 || md.ServerSeed == "" {
		return false, nil
	}
	if len(dice.Rolls) >= len(order) {
		// Every remaining seat has rolled (a leaver can leave a room in this
		// shape); nothing to draw, just settle.
		return true, r.finishDice(room, now, true)
	}

	idx := dice.CurrentTurnIndex % len(order)
	current := order[idx]
	if !hasRolled(dice.Rolls, current) {
		nonce := md.Nonce
		value := fair.DiceRoll(md.ServerSeed, md.ClientSeed+"|"+current, nonce, dice.Sides)
		md.Nonce++
		dice.Rolls = append(dice.Rolls, models.DiceRoll{UserID: current, Value: value, Nonce: nonce})
	}

	if len(dice.Rolls) >= len(order) {
		return true, r.finishDice(room, now, true)
	}

	dice.CurrentTurnIndex = (idx + 1) % len(order)
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		return updateRoomGuarded(tx, room, "metadata")
	})
	if err != nil {
		return false, err
	}
	r.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	logger.Infof("[pvp] auto-rolled idle dice turn in %s", room.RoomID)
	return true, nil
}

// finishDice settles a dice room once every player has a committed roll: the
// pot goes to whoever shares the maximum value, split exactly.
func (r *Resolver) finishDice(room *models.Room, now time.Time, sweep bool) error {
	md := room.Metadata
	dice := md.Dice
	order := r.turnOrder(room)

	max := 0
	for _, roll := range dice.Rolls {
		if roll.Value > max {
			max = roll.Value
		}
	}
	var winners []string
	for _, roll := range dice.Rolls {
		if roll.Value == max {
			winners = append(winners, roll.UserID)
		}
	}
	pot := room.BetAmount * float64(len(order))

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if md.Escrowed {
			if err := r.Ledger.PayoutPot(tx, room, winners, pot, diceReason(sweep)); err != nil {
				return err
			}
		}
		dice.Result = &models.DiceResult{Max: max, Winners: winners, Pot: pot}
		dice.Pending = nil
		md.ServerSeedReveal = md.ServerSeed
		md.Escrowed = false
		room.Status = models.RoomFinished
		if len(winners) == 1 {
			room.WinnerUserID = winners[0]
		}
		return updateRoomGuarded(tx, room, "status", "winner_user_id", "metadata")
	})
	if err != nil {
		return err
	}

	r.Notifier.ToRoom(room.RoomID, "pvp:roomFinished", SnapshotRoom(room, now))
	r.Notifier.Broadcast("pvp:roomUpdated", map[string]interface{}{"roomId": room.RoomID})
	logger.Infof("[pvp] dice %s finished, max=%d winners=%d pot=%.2f sweep=%v", room.RoomID, max, len(winners), pot, sweep)
	return nil
}

// CancelDice refunds every stake and parks the room in cancelled. Used when
// an active dice room never produced a single roll.
func (r *Resolver) CancelDice(room *models.Room, now time.Time, reason string) error {
	md := room.Metadata
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if md != nil && md.Escrowed {
			if err := r.Ledger.RefundAll(tx, room, reason); err != nil {
				return err
			}
			md.Escrowed = false
		}
		room.Status = models.RoomCancelled
		return updateRoomGuarded(tx, room, "status", "metadata")
	})
	if err != nil {
		return err
	}
	r.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	logger.Infof("[pvp] cancelled dice room %s (%s)", room.RoomID, reason)
	return nil
}

// activeRooms loads all active rooms for one game; deadline filtering happens
// in Go because the deadlines live inside the metadata document.
func (r *Resolver) activeRooms(game string) []models.Room {
	var rooms []models.Room
	err := r.DB.Where("status = ? AND game = ?", models.RoomActive, game).Find(&rooms).Error
	if err != nil {
		logger.Errorf("[pvp] list active %s rooms: %v", game, err)
		return nil
	}
	return rooms
}

// turnOrder falls back to seat order when metadata predates the stored one.
func (r *Resolver) turnOrder(room *models.Room) []string {
	if room.Metadata != nil && room.Metadata.Dice != nil && len(room.Metadata.Dice.TurnOrder) > 0 {
		return room.Metadata.Dice.TurnOrder
	}
	return room.PlayerIDs()
}

func hasRolled(rolls []models.DiceRoll, userID string) bool {
	for _, roll := range rolls {
		if roll.UserID == userID {
			return true
		}
	}
	return false
}
