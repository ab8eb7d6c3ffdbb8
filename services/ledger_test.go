package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pvp-room-system/models"
)

func TestCaptureDebitsEveryPlayerAndLogs(t *testing.T) {
	res, _ := newTestResolver(t, testConfig())
	db := res.DB
	createUser(t, db, "u1", 100)
	createUser(t, db, "u2", 50)

	room := &models.Room{RoomID: "AbCdE", Game: models.GameDice, BetAmount: 10,
		Players: players(time.Now(), "u1", "u2")}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return res.Ledger.Capture(tx, room)
	}))

	assert.Equal(t, 90.0, userBalance(t, db, "u1"))
	assert.Equal(t, 40.0, userBalance(t, db, "u2"))

	entries := ledgerEntries(t, db, "AbCdE")
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, models.ReasonEscrow, e.Reason)
		assert.Equal(t, -10.0, e.Delta)
	}
}

func TestCaptureInsufficientBalanceRollsBackWholeSettlement(t *testing.T) {
	res, _ := newTestResolver(t, testConfig())
	db := res.DB
	createUser(t, db, "rich", 100)
	createUser(t, db, "poor", 3)

	room := &models.Room{RoomID: "AbCdE", Game: models.GameDice, BetAmount: 10,
		Players: players(time.Now(), "rich", "poor")}

	err := db.Transaction(func(tx *gorm.DB) error {
		return res.Ledger.Capture(tx, room)
	})
	require.Error(t, err)

	// Nothing moved: the rich player's debit rolled back with the failure.
	assert.Equal(t, 100.0, userBalance(t, db, "rich"))
	assert.Equal(t, 3.0, userBalance(t, db, "poor"))
	assert.Empty(t, ledgerEntries(t, db, "AbCdE"))
}

func TestPayoutPotSplitsExactly(t *testing.T) {
	res, _ := newTestResolver(t, testConfig())
	db := res.DB
	createUser(t, db, "w1", 0)
	createUser(t, db, "w2", 0)

	room := &models.Room{RoomID: "AbCdE", Game: models.GameDice, BetAmount: 5,
		Players: players(time.Now(), "w1", "w2", "l1")}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return res.Ledger.PayoutPot(tx, room, []string{"w1", "w2"}, 15, models.ReasonPayoutDice)
	}))

	assert.Equal(t, 7.5, userBalance(t, db, "w1"))
	assert.Equal(t, 7.5, userBalance(t, db, "w2"))
}

func TestEscrowThenRefundNetsToZero(t *testing.T) {
	res, _ := newTestResolver(t, testConfig())
	db := res.DB
	createUser(t, db, "u1", 20)
	createUser(t, db, "u2", 20)
	createUser(t, db, "u3", 20)

	room := &models.Room{RoomID: "AbCdE", Game: models.GameDice, BetAmount: 5,
		Players: players(time.Now(), "u1", "u2", "u3")}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := res.Ledger.Capture(tx, room); err != nil {
			return err
		}
		return res.Ledger.RefundAll(tx, room, models.ReasonRefundDiceUnstarted)
	}))

	net, err := res.Ledger.RoomNet("AbCdE")
	require.NoError(t, err)
	assert.Zero(t, net)
	for _, uid := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, 20.0, userBalance(t, db, uid))
	}
}

func TestBalanceAfterTracksRunningBalance(t *testing.T) {
	res, _ := newTestResolver(t, testConfig())
	db := res.DB
	createUser(t, db, "u1", 100)

	room := &models.Room{RoomID: "AbCdE", Game: models.GameCoinflip, BetAmount: 10,
		Players: players(time.Now(), "u1")}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		if err := res.Ledger.Capture(tx, room); err != nil {
			return err
		}
		return res.Ledger.PayoutPot(tx, room, []string{"u1"}, 20, models.ReasonPayoutCoinflip)
	}))

	entries := ledgerEntries(t, db, "AbCdE")
	require.Len(t, entries, 2)
	for _, e := range entries {
		switch e.Reason {
		case models.ReasonEscrow:
			assert.Equal(t, 90.0, e.BalanceAfter)
		case models.ReasonPayoutCoinflip:
			assert.Equal(t, 110.0, e.BalanceAfter)
		default:
			t.Fatalf("unexpected reason %s", e.Reason)
		}
	}
}
