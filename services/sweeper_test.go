package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pvp-room-system/models"
)

func newTestSweeper(t *testing.T) (*Sweeper, *recorder) {
	res, rec := newTestResolver(t, testConfig())
	return NewSweeper(res), rec
}

// ageRoom backdates the room's last touch so age-based passes see it.
func ageRoom(t *testing.T, db *gorm.DB, room *models.Room, age time.Duration) {
	t.Helper()
	require.NoError(t, db.Model(&models.Room{}).Where("id = ?", room.ID).
		UpdateColumn("updated_at", time.Now().Add(-age)).Error)
}

func TestSweepDeletesAbandonedWaitingRooms(t *testing.T) {
	w, rec := newTestSweeper(t)
	db := w.DB
	now := time.Now()

	stale := seedRoom(t, db, &models.Room{
		RoomID: "STALE", Game: models.GameDice, Status: models.RoomWaiting,
		CreatedBy: "u1", Players: players(now, "u1"),
	})
	ageRoom(t, db, stale, time.Hour)

	fresh := seedRoom(t, db, &models.Room{
		RoomID: "FRESH", Game: models.GameDice, Status: models.RoomWaiting,
		CreatedBy: "u2", Players: players(now, "u2"),
	})

	w.RunSweep(now)

	var count int64
	require.NoError(t, db.Model(&models.Room{}).Where("room_id = ?", "STALE").Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Room{}).Where("id = ?", fresh.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Nothing was escrowed, so nothing touches the ledger.
	assert.Empty(t, ledgerEntries(t, db, "STALE"))
	assert.Equal(t, 1, rec.count("pvp:roomDeleted"))
}

func TestSweepFinalizesOverdueCoinflip(t *testing.T) {
	w, rec := newTestSweeper(t)
	db := w.DB
	now := time.Now()
	createUser(t, db, "u1", 90)
	createUser(t, db, "u2", 90)

	seedRoom(t, db, activeCoinflipRoom(now, now.Add(-time.Minute)))

	// A second coinflip still inside its reveal window must stay untouched.
	pending := activeCoinflipRoom(now, now.Add(time.Hour))
	pending.RoomID = "COIN2"
	pending.ID = "COIN2-id"
	seedRoom(t, db, pending)

	w.RunSweep(now)

	var settled models.Room
	require.NoError(t, db.First(&settled, "room_id = ?", "COIN1").Error)
	assert.Equal(t, models.RoomFinished, settled.Status)
	assert.Equal(t, "u1", settled.WinnerUserID)
	assert.Equal(t, 110.0, userBalance(t, db, "u1"))

	entries := ledgerEntries(t, db, "COIN1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.ReasonPayoutCoinflipSweep, entries[0].Reason)

	var untouched models.Room
	require.NoError(t, db.First(&untouched, "room_id = ?", "COIN2").Error)
	assert.Equal(t, models.RoomActive, untouched.Status)
	assert.Empty(t, ledgerEntries(t, db, "COIN2"))
	assert.Equal(t, 1, rec.count("pvp:roomFinished"))
}

func TestSweepIsIdempotentAcrossRuns(t *testing.T) {
	w, rec := newTestSweeper(t)
	db := w.DB
	now := time.Now()
	createUser(t, db, "u1", 90)
	createUser(t, db, "u2", 90)
	seedRoom(t, db, activeCoinflipRoom(now, now.Add(-time.Minute)))

	w.RunSweep(now)
	w.RunSweep(now.Add(time.Minute))

	// The second run finds a finished room and settles nothing again.
	assert.Len(t, ledgerEntries(t, db, "COIN1"), 1)
	assert.Equal(t, 110.0, userBalance(t, db, "u1"))
	assert.Equal(t, 1, rec.count("pvp:roomFinished"))
}

func TestSweepCommitsAbandonedPendingRoll(t *testing.T) {
	w, _ := newTestSweeper(t)
	db := w.DB
	now := time.Now()
	createUser(t, db, "u1", 90)
	createUser(t, db, "u2", 90)

	room := activeDiceRoom(now, 10, 6, "u1", "u2")
	room.Metadata.Dice.Pending = &models.PendingRoll{
		UserID: "u1", Value: 4,
		RevealAt:  now.Add(-time.Minute),
		AdvanceAt: now.Add(-time.Minute),
	}
	seedRoom(t, db, room)

	w.RunSweep(now)

	var repaired models.Room
	require.NoError(t, db.First(&repaired, "room_id = ?", "DICE1").Error)
	assert.Equal(t, models.RoomActive, repaired.Status)
	dice := repaired.Metadata.Dice
	require.Len(t, dice.Rolls, 1)
	assert.Equal(t, 4, dice.Rolls[0].Value)
	assert.Nil(t, dice.Pending)
	assert.Equal(t, 1, dice.CurrentTurnIndex)
}

func TestSweepAutoRollsIdleTurn(t *testing.T) {
	w, _ := newTestSweeper(t)
	db := w.DB
	now := time.Now()
	createUser(t, db, "u1", 90)
	createUser(t, db, "u2", 90)

	room := activeDiceRoom(now, 10, 6, "u1", "u2")
	room.Metadata.Dice.Rolls = []models.DiceRoll{{UserID: "u1", Value: 3}}
	room.Metadata.Dice.CurrentTurnIndex = 1
	seedRoom(t, db, room)
	ageRoom(t, db, room, 5*time.Minute)

	w.RunSweep(now)

	var settled models.Room
	require.NoError(t, db.First(&settled, "room_id = ?", "DICE1").Error)
	// The auto-roll completed the round, so the room settled in the same pass.
	assert.Equal(t, models.RoomFinished, settled.Status)
	require.NotNil(t, settled.Metadata.Dice.Result)
	assert.Len(t, settled.Metadata.Dice.Rolls, 2)
	assert.False(t, settled.Metadata.Escrowed)

	net, err := w.Ledger.RoomNet("DICE1")
	require.NoError(t, err)
	assert.Equal(t, 20.0, net) // payout only; escrow predates this room fixture
}

func TestSweepCancelsNeverRolledDiceRoom(t *testing.T) {
	w, rec := newTestSweeper(t)
	db := w.DB
	now := time.Now()
	createUser(t, db, "u1", 90)
	createUser(t, db, "u2", 90)

	room := activeDiceRoom(now, 10, 6, "u1", "u2")
	seedRoom(t, db, room)
	ageRoom(t, db, room, 20*time.Minute)

	// A recently started zero-roll room stays untouched.
	young := activeDiceRoom(now, 10, 6, "u1", "u2")
	young.RoomID = "DICE2"
	young.ID = "DICE2-id"
	seedRoom(t, db, young)

	w.RunSweep(now)

	var cancelled models.Room
	require.NoError(t, db.First(&cancelled, "room_id = ?", "DICE1").Error)
	assert.Equal(t, models.RoomCancelled, cancelled.Status)
	assert.False(t, cancelled.Metadata.Escrowed)
	assert.Equal(t, 100.0, userBalance(t, db, "u1"))
	assert.Equal(t, 100.0, userBalance(t, db, "u2"))

	entries := ledgerEntries(t, db, "DICE1")
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.ReasonRefundDiceUnstarted, e.Reason)
	}

	var untouched models.Room
	require.NoError(t, db.First(&untouched, "room_id = ?", "DICE2").Error)
	assert.Equal(t, models.RoomActive, untouched.Status)
	assert.Equal(t, 1, rec.count("pvp:roomUpdated"))
}

func TestSweepTimingAccessors(t *testing.T) {
	w, _ := newTestSweeper(t)
	before := time.Now()
	w.RunSweep(before)
	last := w.LastSweepAt()
	assert.False(t, last.Before(before.Truncate(time.Millisecond)))
	assert.Equal(t, last.Add(w.Cfg.SweepInterval), w.NextSweepAt())
}
