package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"pvp-room-system/config"
	"pvp-room-system/fair"
	"pvp-room-system/models"
)

// recordedEvent captures one Publisher call for assertions.
type recordedEvent struct {
	Scope  string // broadcast | room | user
	Target string
	Event  string
}

// recorder is an in-memory Publisher for tests.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Broadcast(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Scope: "broadcast", Event: event})
}

func (r *recorder) ToRoom(roomID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Scope: "room", Target: roomID, Event: event})
}

func (r *recorder) ToUser(uid, event string, payload interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Scope: "user", Target: uid, Event: event})
	return 0
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.BalanceLog{},
		&models.Notification{},
	))
	return db
}

func testConfig() config.Config {
	return config.Config{
		CoinflipRevealDelay: 0,
		DiceRevealDelay:     0,
		SweepInterval:       time.Minute,
		MaxWaitingAge:       45 * time.Minute,
		CoinflipGrace:       0,
		DiceGrace:           0,
		DiceIdle:            time.Minute,
		DiceUnstartedRefund: 15 * time.Minute,
		IdempotencyTTL:      time.Minute,
	}
}

func newTestResolver(t *testing.T, cfg config.Config) (*Resolver, *recorder) {
	t.Helper()
	rec := &recorder{}
	db := newTestDB(t)
	res := NewResolver(db, NewLedgerService(db), rec, fair.NewEngine(), cfg)
	return res, rec
}

func createUser(t *testing.T, db *gorm.DB, id string, balance float64) {
	t.Helper()
	require.NoError(t, db.Create(&models.User{ID: id, Username: "user-" + id, Balance: balance}).Error)
}

func userBalance(t *testing.T, db *gorm.DB, id string) float64 {
	t.Helper()
	var u models.User
	require.NoError(t, db.First(&u, "id = ?", id).Error)
	return u.Balance
}

func ledgerEntries(t *testing.T, db *gorm.DB, roomID string) []models.BalanceLog {
	t.Helper()
	var entries []models.BalanceLog
	require.NoError(t, db.Where("room_id = ?", roomID).Order("created_at").Find(&entries).Error)
	return entries
}

// seedRoom persists a room with sensible defaults for resolver-level tests.
func seedRoom(t *testing.T, db *gorm.DB, room *models.Room) *models.Room {
	t.Helper()
	if room.ID == "" {
		room.ID = room.RoomID + "-id"
	}
	require.NoError(t, db.Create(room).Error)
	return room
}

func players(now time.Time, ids ...string) []models.RoomPlayer {
	out := make([]models.RoomPlayer, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.RoomPlayer{UserID: id, JoinedAt: now, Ready: true})
	}
	return out
}
