package services

import (
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"

	"pvp-room-system/models"
	"pvp-room-system/utils/logger"
)

// Sweeper is the background reconciliation pass. It repairs rooms left
// inconsistent by crashes, missed reveals and abandoned turns, using the same
// Resolver the live path uses so both entry points converge on one outcome.
type Sweeper struct {
	*Resolver

	sched     gocron.Scheduler
	lastSweep atomic.Int64 // unix ms
}

func NewSweeper(res *Resolver) *Sweeper {
	return &Sweeper{Resolver: res}
}

// Start schedules the recurring sweep and stamps the health clock so the
// health endpoint never reports an empty last-run during warmup.
func (w *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.sched = sched
	w.touch()

	_, err = sched.NewJob(
		gocron.DurationJob(w.Cfg.SweepInterval),
		gocron.NewTask(func() {
			w.RunSweep(time.Now())
		}),
	)
	if err != nil {
		return err
	}
	sched.Start()
	logger.Infof("[sweep] scheduled every %s", w.Cfg.SweepInterval)
	return nil
}

func (w *Sweeper) Stop() {
	if w.sched != nil {
		_ = w.sched.Shutdown()
	}
}

func (w *Sweeper) touch() {
	w.lastSweep.Store(time.Now().UnixMilli())
}

// LastSweepAt reports when the sweeper last made progress.
func (w *Sweeper) LastSweepAt() time.Time {
	return time.UnixMilli(w.lastSweep.Load())
}

// NextSweepAt is the expected next tick, for health monitoring.
func (w *Sweeper) NextSweepAt() time.Time {
	return w.LastSweepAt().Add(w.Cfg.SweepInterval)
}

// RunSweep executes all passes in order. A failure on one room is logged and
// never aborts the remaining rooms or passes.
func (w *Sweeper) RunSweep(now time.Time) {
	w.cleanupWaitingRooms(now)
	w.finalizeStaleCoinflips(now)
	w.repairStaleDice(now)
	w.autoRollIdleDice(now)
	w.cancelUnstartedDice(now)
	w.touch()
}

// cleanupWaitingRooms deletes waiting rooms untouched past the max age,
// refunding any (exceptional) escrow first.
func (w *Sweeper) cleanupWaitingRooms(now time.Time) {
	cutoff := now.Add(-w.Cfg.MaxWaitingAge)
	var rooms []models.Room
	err := w.DB.Where("status = ? AND updated_at < ?", models.RoomWaiting, cutoff).Find(&rooms).Error
	if err != nil {
		logger.Errorf("[sweep] list stale waiting rooms: %v", err)
		return
	}

	for i := range rooms {
		room := &rooms[i]
		err := w.DB.Transaction(func(tx *gorm.DB) error {
			if room.Metadata != nil && room.Metadata.Escrowed && room.BetAmount > 0 {
				if err := w.Ledger.RefundAll(tx, room, models.ReasonRefundWaitingCleanup); err != nil {
					return err
				}
			}
			return deleteRoomGuarded(tx, room)
		})
		if err != nil {
			logger.Errorf("[sweep] cleanup waiting room %s: %v", room.RoomID, err)
			continue
		}
		w.Notifier.Broadcast("pvp:roomDeleted", map[string]interface{}{"roomId": room.RoomID, "serverNow": now.UnixMilli()})
		logger.Infof("[sweep] deleted stale waiting room %s", room.RoomID)
	}
}

// finalizeStaleCoinflips settles coinflips whose reveal deadline passed more
// than the grace period ago. The client normally beats the sweeper here.
func (w *Sweeper) finalizeStaleCoinflips(now time.Time) {
	rooms := w.activeRooms(models.GameCoinflip)
	for i := range rooms {
		room := &rooms[i]
		md := room.Metadata
		if md == nil || md.Coinflip == nil || md.Coinflip.Pending == nil {
			continue
		}
		if now.Sub(md.Coinflip.Pending.RevealAt) < w.Cfg.CoinflipGrace {
			continue
		}
		if _, err := w.FinalizeCoinflip(room, now, true); err != nil {
			logger.Errorf("[sweep] finalize coinflip %s: %v", room.RoomID, err)
		}
	}
}

// repairStaleDice commits pending rolls whose advance deadline passed the
// grace period, then advances or finalizes exactly like the live path.
func (w *Sweeper) repairStaleDice(now time.Time) {
	rooms := w.activeRooms(models.GameDice)
	for i := range rooms {
		room := &rooms[i]
		md := room.Metadata
		if md == nil || md.Dice == nil || md.Dice.Pending == nil {
			continue
		}
		if now.Sub(md.Dice.Pending.AdvanceAt) < w.Cfg.DiceGrace {
			continue
		}
		if _, err := w.AdvanceDice(room, now, true); err != nil {
			logger.Errorf("[sweep] repair dice %s: %v", room.RoomID, err)
		}
	}
}

// autoRollIdleDice rolls on behalf of a current player who has gone silent,
// so a started game cannot stall forever. Rooms with zero rolls are left to
// the cancellation pass instead.
func (w *Sweeper) autoRollIdleDice(now time.Time) {
	cutoff := now.Add(-w.Cfg.DiceIdle)
	rooms := w.activeRooms(models.GameDice)
	for i := range rooms {
		room := &rooms[i]
		md := room.Metadata
		if md == nil || md.Dice == nil || md.Dice.Pending != nil {
			continue
		}
		if len(md.Dice.Rolls) == 0 || room.UpdatedAt.After(cutoff) {
			continue
		}
		if _, err := w.AutoRollDice(room, now); err != nil {
			logger.Errorf("[sweep] auto-roll dice %s: %v", room.RoomID, err)
		}
	}
}

// cancelUnstartedDice cancels active dice rooms that never saw a single roll
// and refunds every stake in full.
func (w *Sweeper) cancelUnstartedDice(now time.Time) {
	cutoff := now.Add(-w.Cfg.DiceUnstartedRefund)
	rooms := w.activeRooms(models.GameDice)
	for i := range rooms {
		room := &rooms[i]
		md := room.Metadata
		if md == nil || md.Dice == nil || md.Dice.Pending != nil {
			continue
		}
		if len(md.Dice.Rolls) != 0 || room.UpdatedAt.After(cutoff) {
			continue
		}
		if len(room.Players) == 0 {
			err := w.DB.Transaction(func(tx *gorm.DB) error {
				return deleteRoomGuarded(tx, room)
			})
			if err != nil {
				logger.Errorf("[sweep] delete empty dice room %s: %v", room.RoomID, err)
				continue
			}
			w.Notifier.Broadcast("pvp:roomDeleted", map[string]interface{}{"roomId": room.RoomID, "serverNow": now.UnixMilli()})
			continue
		}
		if err := w.CancelDice(room, now, models.ReasonRefundDiceUnstarted); err != nil {
			logger.Errorf("[sweep] cancel unstarted dice %s: %v", room.RoomID, err)
		}
	}
}

