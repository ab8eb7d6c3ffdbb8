package services

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"pvp-room-system/models"
	"pvp-room-system/utils/logger"
)

// HealthService reports operational state of the room engine: room counts by
// status, rooms sitting past their resolution deadline, and sweep timing.
type HealthService struct {
	Rooms   *RoomService
	Sweeper *Sweeper

	startedAt time.Time
}

func NewHealthService(rooms *RoomService, sweeper *Sweeper) *HealthService {
	return &HealthService{Rooms: rooms, Sweeper: sweeper, startedAt: time.Now()}
}

func (h *HealthService) Health(c *fiber.Ctx) error {
	now := time.Now()

	type statusCount struct {
		Status string
		N      int64
	}
	var rows []statusCount
	err := h.Rooms.DB.Model(&models.Room{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return respondError(c, err)
	}
	counts := fiber.Map{}
	for _, row := range rows {
		counts[row.Status] = row.N
	}

	staleCoinflip := 0
	for _, room := range h.Rooms.activeRooms(models.GameCoinflip) {
		md := room.Metadata
		if md != nil && md.Coinflip != nil && md.Coinflip.Pending != nil && now.After(md.Coinflip.Pending.RevealAt) {
			staleCoinflip++
		}
	}
	staleDice := 0
	for _, room := range h.Rooms.activeRooms(models.GameDice) {
		md := room.Metadata
		if md != nil && md.Dice != nil && md.Dice.Pending != nil && now.After(md.Dice.Pending.AdvanceAt) {
			staleDice++
		}
	}

	last := h.Sweeper.LastSweepAt()
	next := h.Sweeper.NextSweepAt()
	return c.JSON(fiber.Map{
		"ok":           true,
		"serverNow":    now.UnixMilli(),
		"serverNowIso": now.UTC().Format(time.RFC3339),
		"counts":       counts,
		"stale":        fiber.Map{"coinflip": staleCoinflip, "dice": staleDice},
		"fairness":     fiber.Map{"commitment": h.Rooms.Engine.Commit()},
		"cron": fiber.Map{
			"sweepIntervalMs": h.Sweeper.Cfg.SweepInterval.Milliseconds(),
			"lastSweepAt":     last.UnixMilli(),
			"lastSweepIso":    last.UTC().Format(time.RFC3339),
			"nextSweepAt":     next.UnixMilli(),
			"nextSweepIso":    next.UTC().Format(time.RFC3339),
		},
		"uptimeSec": int(now.Sub(h.startedAt).Seconds()),
	})
}

// RotateSeed swaps the process-wide active seed and discloses the outgoing
// secret so anything committed against it can still be verified.
func (h *HealthService) RotateSeed(c *fiber.Ctx) error {
	previous := h.Rooms.Engine.Rotate()
	logger.Infof("[pvp] active server seed rotated")
	return c.JSON(fiber.Map{
		"previousServerSeed": previous,
		"commitment":         h.Rooms.Engine.Commit(),
	})
}
