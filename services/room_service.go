package services

import (
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pvp-room-system/fair"
	"pvp-room-system/models"
	"pvp-room-system/utils/logger"
)

const (
	roomCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	roomCodeLength   = 5
	maxListRooms     = 200
)

// RoomService is the request-facing room lifecycle controller. Every mutating
// handler loads the room, applies a guarded transition, and publishes a
// room-changed event on success.
type RoomService struct {
	*Resolver
}

func NewRoomService(res *Resolver) *RoomService {
	return &RoomService{Resolver: res}
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

// generateRoomCode draws short codes until one does not collide with a live
// room. Finished and cancelled rooms never block reuse.
func (s *RoomService) generateRoomCode() (string, error) {
	var code string
	for i := 0; i < 200; i++ {
		buf := make([]byte, roomCodeLength)
		for j := range buf {
			buf[j] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
		}
		code = string(buf)

		var count int64
		err := s.DB.Model(&models.Room{}).
			Where("room_id = ? AND status IN ?", code, []string{models.RoomWaiting, models.RoomActive}).
			Count(&count).Error
		if err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return code, nil
}

// loadRoom fetches a room by public code, preferring the live instance when a
// finished room's code has been reused.
func (s *RoomService) loadRoom(code string) (*models.Room, error) {
	code = normalizeCode(code)
	var room models.Room
	err := s.DB.Where("room_id = ?", code).
		Order("CASE WHEN status IN ('waiting','active') THEN 0 ELSE 1 END, created_at DESC").
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound("room %s not found", code)
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// maybeResolve lets a live request cross an expired deadline: it runs the same
// resolution step the sweeper would, then reloads on a lost race.
func (s *RoomService) maybeResolve(room *models.Room, now time.Time) {
	var err error
	md := room.Metadata
	if room.Status == models.RoomActive && md != nil {
		switch {
		case room.Game == models.GameCoinflip && md.Coinflip != nil && md.Coinflip.Pending != nil &&
			!now.Before(md.Coinflip.Pending.RevealAt):
			_, err = s.FinalizeCoinflip(room, now, false)
		case room.Game == models.GameDice && md.Dice != nil && md.Dice.Pending != nil &&
			!now.Before(md.Dice.Pending.AdvanceAt):
			_, err = s.AdvanceDice(room, now, false)
		}
	}
	if errors.Is(err, ErrConflict) {
		if fresh, lerr := s.loadRoom(room.RoomID); lerr == nil {
			*room = *fresh
		}
	} else if err != nil {
		logger.Errorf("[pvp] resolving %s on request path: %v", room.RoomID, err)
	}
}

type createRoomRequest struct {
	Game       string  `json:"game"`
	BetAmount  float64 `json:"betAmount"`
	MaxPlayers int     `json:"maxPlayers"`
	Side       string  `json:"side"`
	DiceSides  int     `json:"diceSides"`
}

// CreateRoom opens a new waiting room with the caller as owner and sole,
// not-ready player. No funds move here; capture happens at start.
func (s *RoomService) CreateRoom(c *fiber.Ctx) error {
	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, errInvalidInput("malformed body"))
	}
	if req.Game == "" {
		req.Game = models.GameCoinflip
	}
	if req.Game != models.GameCoinflip && req.Game != models.GameDice {
		return respondError(c, errInvalidInput("unsupported game %q", req.Game))
	}
	if req.BetAmount < 0 {
		return respondError(c, errInvalidInput("betAmount must be >= 0"))
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = 2
	}
	if req.MaxPlayers < 2 || req.MaxPlayers > 6 {
		return respondError(c, errInvalidInput("maxPlayers must be between 2 and 6"))
	}

	ownerID := userID(c)
	now := time.Now()

	code, err := s.generateRoomCode()
	if err != nil {
		return respondError(c, err)
	}

	serverSeed, seedHash := s.Engine.MintCommitment()
	md := &models.RoomMetadata{
		SeedHash:   seedHash,
		ServerSeed: serverSeed,
		ClientSeed: code,
	}

	switch req.Game {
	case models.GameCoinflip:
		side := req.Side
		if side == "" {
			side = fair.Heads
		}
		if !fair.ValidSide(side) {
			return respondError(c, errInvalidInput("invalid coin side %q", req.Side))
		}
		// Two fixed seats: the joiner is auto-assigned the opposite side.
		req.MaxPlayers = 2
		md.Coinflip = &models.CoinflipState{Sides: map[string]string{ownerID: side}}
	case models.GameDice:
		sides := req.DiceSides
		if sides == 0 {
			sides = 6
		}
		if sides < 2 || sides > 100 {
			return respondError(c, errInvalidInput("diceSides must be between 2 and 100"))
		}
		md.Dice = &models.DiceState{Sides: sides, Rolls: []models.DiceRoll{}}
	}

	room := &models.Room{
		ID:         uuid.NewString(),
		RoomID:     code,
		Game:       req.Game,
		BetAmount:  req.BetAmount,
		MaxPlayers: req.MaxPlayers,
		Players: []models.RoomPlayer{{
			UserID:   ownerID,
			JoinedAt: now,
			Ready:    false,
			Side:     sideOf(md, ownerID),
		}},
		Status:    models.RoomWaiting,
		Metadata:  md,
		CreatedBy: ownerID,
	}
	if err := s.DB.Create(room).Error; err != nil {
		return respondError(c, err)
	}

	s.Notifier.Broadcast("pvp:roomCreated", SnapshotRoom(room, now))
	logger.Infof("[pvp] room %s created by %s (game=%s bet=%.2f)", code, ownerID, req.Game, req.BetAmount)
	return c.JSON(SnapshotRoom(room, now))
}

func sideOf(md *models.RoomMetadata, uid string) string {
	if md.Coinflip == nil {
		return ""
	}
	return md.Coinflip.Sides[uid]
}

// ListRooms returns live rooms, newest first, optionally filtered by game.
func (s *RoomService) ListRooms(c *fiber.Ctx) error {
	q := s.DB.Where("status IN ?", []string{models.RoomWaiting, models.RoomActive})
	if game := c.Query("game"); game != "" {
		q = q.Where("game = ?", game)
	}
	var rooms []models.Room
	if err := q.Order("created_at DESC").Limit(maxListRooms).Find(&rooms).Error; err != nil {
		return respondError(c, err)
	}
	now := time.Now()
	out := make([]fiber.Map, 0, len(rooms))
	for i := range rooms {
		out = append(out, SnapshotRoom(&rooms[i], now))
	}
	return c.JSON(out)
}

// GetRoom returns one room snapshot. Fetching a room whose deadline has
// passed finalizes it first, so clients polling for the result converge.
func (s *RoomService) GetRoom(c *fiber.Ctx) error {
	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	now := time.Now()
	s.maybeResolve(room, now)
	return c.JSON(SnapshotRoom(room, now))
}

// JoinRoom appends the caller to a waiting room. Re-joining is a no-op that
// returns the current snapshot.
func (s *RoomService) JoinRoom(c *fiber.Ctx) error {
	uid := userID(c)
	now := time.Now()

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}

	if !room.HasPlayer(uid) {
		if room.Status != models.RoomWaiting {
			return respondError(c, apiErr(fiber.StatusBadRequest, CodeRoomNotJoinable, "room is not joinable"))
		}
		if len(room.Players) >= room.MaxPlayers {
			return respondError(c, apiErr(fiber.StatusBadRequest, CodeRoomFull, "room is full"))
		}

		player := models.RoomPlayer{UserID: uid, JoinedAt: now}
		if room.Game == models.GameCoinflip && room.Metadata != nil && room.Metadata.Coinflip != nil {
			cf := room.Metadata.Coinflip
			if _, picked := cf.Sides[uid]; !picked {
				cf.Sides[uid] = fair.Opposite(cf.Sides[room.CreatedBy])
			}
			player.Side = cf.Sides[uid]
		}
		room.Players = append(room.Players, player)

		err = s.DB.Transaction(func(tx *gorm.DB) error {
			return updateRoomGuarded(tx, room, "players", "metadata")
		})
		if err != nil {
			return respondError(c, err)
		}
	}

	s.Notifier.Broadcast("pvp:roomUpdated", fiber.Map{"roomId": room.RoomID})
	s.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	return c.JSON(SnapshotRoom(room, now))
}

type readyRequest struct {
	Ready *bool `json:"ready"`
}

// SetReady toggles the caller's own ready flag.
func (s *RoomService) SetReady(c *fiber.Ctx) error {
	uid := userID(c)
	now := time.Now()

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	if room.Status != models.RoomWaiting && room.Status != models.RoomActive {
		return respondError(c, apiErr(fiber.StatusBadRequest, CodeInvalidOperation, "room not in a ready-able state"))
	}
	idx := room.PlayerIndex(uid)
	if idx < 0 {
		return respondError(c, errForbidden("you are not in this room"))
	}

	desired := true
	var req readyRequest
	if err := c.BodyParser(&req); err == nil && req.Ready != nil {
		desired = *req.Ready
	}
	room.Players[idx].Ready = desired

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return updateRoomGuarded(tx, room, "players")
	})
	if err != nil {
		return respondError(c, err)
	}

	s.Notifier.Broadcast("pvp:roomUpdated", fiber.Map{"roomId": room.RoomID})
	s.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	return c.JSON(SnapshotRoom(room, now))
}

// StartRoom moves a room to active: stakes are escrowed for every seat in one
// transaction and the per-game resolution state is materialized. Only the
// owner may start, and every non-owner must be ready; the owner's own ready
// flag is never consulted.
func (s *RoomService) StartRoom(c *fiber.Ctx) error {
	uid := userID(c)
	now := time.Now()

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	if room.CreatedBy != uid {
		return respondError(c, errForbidden("only the owner can start"))
	}
	if room.Status != models.RoomWaiting && room.Status != models.RoomActive {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "room cannot be started"))
	}
	if len(room.Players) < 2 {
		return respondError(c, apiErr(fiber.StatusBadRequest, CodeNotEnoughPlayers, "need at least 2 players"))
	}
	for _, p := range room.Players {
		if p.UserID == room.CreatedBy {
			continue
		}
		if !p.Ready {
			return respondError(c, apiErr(fiber.StatusBadRequest, CodePlayersNotReady, "all participants must be ready"))
		}
	}

	md := room.Metadata
	if md == nil {
		md = &models.RoomMetadata{ClientSeed: room.RoomID}
		md.ServerSeed, md.SeedHash = s.Engine.MintCommitment()
		room.Metadata = md
	}

	switch room.Game {
	case models.GameCoinflip:
		if len(room.Players) != 2 || md.Coinflip == nil {
			return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "coinflip needs exactly 2 opposing sides"))
		}
		s1 := md.Coinflip.Sides[room.Players[0].UserID]
		s2 := md.Coinflip.Sides[room.Players[1].UserID]
		if !fair.ValidSide(s1) || !fair.ValidSide(s2) || s1 == s2 {
			return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "coinflip needs exactly 2 opposing sides"))
		}

		// Draw now, reveal after the animation window. The outcome is already
		// fixed by the committed seed either way.
		result := fair.Coinflip(md.ServerSeed, md.ClientSeed, md.Nonce)
		winner := ""
		for _, p := range room.Players {
			if md.Coinflip.Sides[p.UserID] == result {
				winner = p.UserID
			}
		}
		md.NonceStart = md.Nonce
		md.Nonce++
		md.Coinflip.Pending = &models.PendingCoin{
			Result:       result,
			WinnerUserID: winner,
			RevealAt:     now.Add(s.Cfg.CoinflipRevealDelay),
		}
	case models.GameDice:
		if md.Dice == nil {
			md.Dice = &models.DiceState{Sides: 6}
		}
		md.NonceStart = md.Nonce
		md.Dice.TurnOrder = room.PlayerIDs()
		md.Dice.CurrentTurnIndex = 0
		md.Dice.Rolls = []models.DiceRoll{}
		md.Dice.Pending = nil
		md.Dice.Result = nil
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if !md.Escrowed {
			if err := s.Ledger.Capture(tx, room); err != nil {
				return err
			}
			md.Escrowed = true
		}
		room.Status = models.RoomActive
		return updateRoomGuarded(tx, room, "status", "metadata")
	})
	if err != nil {
		return respondError(c, err)
	}

	s.Notifier.Broadcast("pvp:roomStarted", fiber.Map{"roomId": room.RoomID})
	s.Notifier.ToRoom(room.RoomID, "pvp:roomStarted", SnapshotRoom(room, now))
	logger.Infof("[pvp] room %s started with %d players", room.RoomID, len(room.Players))
	return c.JSON(SnapshotRoom(room, now))
}

// Roll draws the caller's dice turn. The value sits in a pending block until
// the reveal deadline, which doubles as the turn lock.
func (s *RoomService) Roll(c *fiber.Ctx) error {
	uid := userID(c)
	now := time.Now()

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	s.maybeResolve(room, now)

	if room.Game != models.GameDice {
		return respondError(c, errInvalidInput("room is not a dice room"))
	}
	if room.Status != models.RoomActive {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "room is not active"))
	}
	md := room.Metadata
	if md == nil || md.Dice == nil {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "room has no dice state"))
	}
	if !room.HasPlayer(uid) {
		return respondError(c, errForbidden("you are not in this room"))
	}
	if md.Dice.Pending != nil {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "another roll is pending"))
	}
	if hasRolled(md.Dice.Rolls, uid) {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "you already rolled"))
	}
	order := s.turnOrder(room)
	if len(order) == 0 || order[md.Dice.CurrentTurnIndex%len(order)] != uid {
		return respondError(c, errForbidden("not your turn"))
	}

	nonce := md.Nonce
	value := fair.DiceRoll(md.ServerSeed, md.ClientSeed+"|"+uid, nonce, md.Dice.Sides)
	md.Nonce++
	md.Dice.Pending = &models.PendingRoll{
		UserID:    uid,
		Value:     value,
		Nonce:     nonce,
		RevealAt:  now.Add(s.Cfg.DiceRevealDelay),
		AdvanceAt: now.Add(s.Cfg.DiceRevealDelay),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		return updateRoomGuarded(tx, room, "metadata")
	})
	if err != nil {
		return respondError(c, err)
	}

	s.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	return c.JSON(SnapshotRoom(room, now))
}

// LeaveRoom removes the caller. The owner must delete instead. An active room
// falling under 2 seats refunds all stakes and reverts to waiting with every
// ready flag cleared; an emptied room is hard-deleted.
func (s *RoomService) LeaveRoom(c *fiber.Ctx) error {
	uid := userID(c)
	now := time.Now()

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	if room.CreatedBy == uid {
		return respondError(c, apiErr(fiber.StatusBadRequest, CodeInvalidOperation, "owner cannot leave, delete the room instead"))
	}
	idx := room.PlayerIndex(uid)
	if idx < 0 {
		return respondError(c, apiErr(fiber.StatusBadRequest, CodeInvalidOperation, "you are not in this room"))
	}

	wasEscrowed := room.Metadata != nil && room.Metadata.Escrowed && room.Status == models.RoomActive
	room.Players = append(room.Players[:idx:idx], room.Players[idx+1:]...)
	s.detachPlayer(room, uid)

	if len(room.Players) == 0 {
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			if wasEscrowed && room.BetAmount > 0 {
				if err := s.Ledger.apply(tx, uid, room.RoomID, room.BetAmount, models.ReasonRefundPlayerLeft); err != nil {
					return err
				}
			}
			return deleteRoomGuarded(tx, room)
		})
		if err != nil {
			return respondError(c, err)
		}
		s.Notifier.Broadcast("pvp:roomDeleted", fiber.Map{"roomId": room.RoomID, "serverNow": now.UnixMilli()})
		return c.JSON(fiber.Map{"ok": true, "deleted": true})
	}

	demoted := room.Status == models.RoomActive && len(room.Players) < 2
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if wasEscrowed && room.BetAmount > 0 {
			// The leaver's stake comes straight back; the pot the remaining
			// players contest shrinks by one seat.
			if err := s.Ledger.apply(tx, uid, room.RoomID, room.BetAmount, models.ReasonRefundPlayerLeft); err != nil {
				return err
			}
		}
		if demoted {
			if wasEscrowed {
				if err := s.Ledger.RefundAll(tx, room, models.ReasonRefundPlayerLeft); err != nil {
					return err
				}
				room.Metadata.Escrowed = false
			}
			room.Status = models.RoomWaiting
			for i := range room.Players {
				room.Players[i].Ready = false
			}
		}
		return updateRoomGuarded(tx, room, "status", "players", "metadata")
	})
	if err != nil {
		return respondError(c, err)
	}

	s.Notifier.Broadcast("pvp:roomUpdated", fiber.Map{"roomId": room.RoomID})
	s.Notifier.ToRoom(room.RoomID, "pvp:roomUpdated", SnapshotRoom(room, now))
	return c.JSON(fiber.Map{"ok": true, "room": SnapshotRoom(room, now)})
}

// detachPlayer strips a leaver out of the game metadata: their side, their
// rolls, their slot in the turn order, and any pending block they own. The
// deadline a leaver held is consumed here, never left dangling.
func (s *RoomService) detachPlayer(room *models.Room, uid string) {
	md := room.Metadata
	if md == nil {
		return
	}
	if md.Coinflip != nil {
		delete(md.Coinflip.Sides, uid)
		if md.Coinflip.Pending != nil && room.Status != models.RoomFinished && len(room.Players) < 2 {
			md.Coinflip.Pending = nil
		}
	}
	if md.Dice != nil {
		dice := md.Dice
		for i, id := range dice.TurnOrder {
			if id == uid {
				dice.TurnOrder = append(dice.TurnOrder[:i:i], dice.TurnOrder[i+1:]...)
				break
			}
		}
		for i, roll := range dice.Rolls {
			if roll.UserID == uid {
				dice.Rolls = append(dice.Rolls[:i:i], dice.Rolls[i+1:]...)
				break
			}
		}
		if dice.Pending != nil && dice.Pending.UserID == uid {
			dice.Pending = nil
		}
		if len(dice.TurnOrder) > 0 {
			// Removing a seat shifts the order under the index, so it can land
			// on a player who already rolled. Walk forward to the next seat
			// still owed a roll or the live turn path rejects everybody.
			dice.CurrentTurnIndex %= len(dice.TurnOrder)
			for i := 0; i < len(dice.TurnOrder); i++ {
				if !hasRolled(dice.Rolls, dice.TurnOrder[dice.CurrentTurnIndex]) {
					break
				}
				dice.CurrentTurnIndex = (dice.CurrentTurnIndex + 1) % len(dice.TurnOrder)
			}
		} else {
			dice.CurrentTurnIndex = 0
		}
	}
}

// DeleteRoom hard-deletes a waiting room. Escrowed funds on a waiting room
// should not exist, but if they do they are refunded first.
func (s *RoomService) DeleteRoom(c *fiber.Ctx) error {
	uid := userID(c)
	now := time.Now()

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	if room.CreatedBy != uid {
		return respondError(c, errForbidden("only the owner can delete"))
	}
	if room.Status != models.RoomWaiting {
		return respondError(c, apiErr(fiber.StatusBadRequest, CodeInvalidOperation, "can delete only while waiting"))
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if room.Metadata != nil && room.Metadata.Escrowed && room.BetAmount > 0 {
			if err := s.Ledger.RefundAll(tx, room, models.ReasonRefundRoomDeleted); err != nil {
				return err
			}
		}
		return deleteRoomGuarded(tx, room)
	})
	if err != nil {
		return respondError(c, err)
	}

	s.Notifier.Broadcast("pvp:roomDeleted", fiber.Map{"roomId": room.RoomID, "serverNow": now.UnixMilli()})
	logger.Infof("[pvp] room %s deleted by owner", room.RoomID)
	return c.JSON(fiber.Map{"ok": true})
}

type inviteRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// InviteToRoom persists an addressed invite and pushes it to the target's
// sockets. Any member may invite; the room itself is untouched.
func (s *RoomService) InviteToRoom(c *fiber.Ctx) error {
	uid := userID(c)

	var req inviteRequest
	if err := c.BodyParser(&req); err != nil || req.TargetUserID == "" {
		return respondError(c, errInvalidInput("targetUserId required"))
	}

	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	if !room.HasPlayer(uid) && room.CreatedBy != uid {
		return respondError(c, errForbidden("only members can invite"))
	}

	fromName := uid
	var inviter models.User
	if err := s.DB.Select("username").First(&inviter, "id = ?", uid).Error; err == nil && inviter.Username != "" {
		fromName = inviter.Username
	}

	link := "/game/battle/room/" + room.RoomID
	meta, _ := json.Marshal(fiber.Map{
		"roomId":       room.RoomID,
		"game":         room.Game,
		"betAmount":    room.BetAmount,
		"fromUserId":   uid,
		"fromUserName": fromName,
		"path":         link,
	})
	notif := &models.Notification{
		ID:       uuid.NewString(),
		UserID:   req.TargetUserID,
		Type:     models.NotificationPvpInvite,
		Message:  "Invitation from " + fromName + " to join a " + room.Game + " room",
		Link:     link,
		Metadata: datatypes.JSON(meta),
	}
	if err := s.DB.Create(notif).Error; err != nil {
		return respondError(c, err)
	}

	delivered := s.Notifier.ToUser(req.TargetUserID, "notification", notif)
	return c.JSON(fiber.Map{"ok": true, "delivered": delivered, "notificationId": notif.ID})
}

// verifyEntry is one recomputable draw of a finished room.
type verifyEntry struct {
	UserID     string `json:"userId,omitempty"`
	ClientSeed string `json:"clientSeed"`
	Nonce      int    `json:"nonce"`
	Value      int    `json:"value,omitempty"`
	Result     string `json:"result,omitempty"`
	Verified   bool   `json:"verified"`
}

// VerifyRoom discloses the seed material of a finished room so any party can
// recompute the outcome and compare it to the pre-published commitment.
func (s *RoomService) VerifyRoom(c *fiber.Ctx) error {
	room, err := s.loadRoom(c.Params("roomId"))
	if err != nil {
		return respondError(c, err)
	}
	if room.Status != models.RoomFinished {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "room is not finished"))
	}
	md := room.Metadata
	if md == nil || md.ServerSeedReveal == "" {
		return respondError(c, apiErr(fiber.StatusConflict, CodeConflict, "room has no disclosed seed"))
	}

	resp := fiber.Map{
		"roomId":     room.RoomID,
		"game":       room.Game,
		"seedHash":   md.SeedHash,
		"serverSeed": md.ServerSeedReveal,
		"clientSeed": md.ClientSeed,
		"nonceStart": md.NonceStart,
		"nonce":      md.Nonce,
		"commitOk":   fair.SeedHash(md.ServerSeedReveal) == md.SeedHash,
	}

	switch room.Game {
	case models.GameCoinflip:
		if md.Coinflip != nil {
			resp["result"] = md.Coinflip.Result
			resp["entries"] = []verifyEntry{{
				ClientSeed: md.ClientSeed,
				Nonce:      md.NonceStart,
				Result:     md.Coinflip.Result,
				Verified:   fair.VerifyCoinflip(md.ServerSeedReveal, md.ClientSeed, md.NonceStart, md.Coinflip.Result),
			}}
		}
	case models.GameDice:
		if md.Dice != nil {
			entries := make([]verifyEntry, 0, len(md.Dice.Rolls))
			for _, roll := range md.Dice.Rolls {
				// Each roll carries the nonce it consumed; positions are not
				// consecutive once a leaver's discarded draw left a gap.
				seed := md.ClientSeed + "|" + roll.UserID
				entries = append(entries, verifyEntry{
					UserID:     roll.UserID,
					ClientSeed: seed,
					Nonce:      roll.Nonce,
					Value:      roll.Value,
					Verified:   fair.VerifyDiceRoll(md.ServerSeedReveal, seed, roll.Nonce, md.Dice.Sides, roll.Value),
				})
			}
			resp["result"] = md.Dice.Result
			resp["entries"] = entries
		}
	}
	return c.JSON(resp)
}

// SnapshotRoom is the client-facing view of a room: the secret seed stays
// redacted until the room finishes, and a server timestamp rides along so
// clients can compute countdowns despite clock skew.
func SnapshotRoom(room *models.Room, now time.Time) fiber.Map {
	snap := fiber.Map{
		"id":         room.ID,
		"roomId":     room.RoomID,
		"game":       room.Game,
		"betAmount":  room.BetAmount,
		"maxPlayers": room.MaxPlayers,
		"players":    room.Players,
		"status":     room.Status,
		"createdBy":  room.CreatedBy,
		"createdAt":  room.CreatedAt,
		"updatedAt":  room.UpdatedAt,
		"serverNow":  now.UnixMilli(),
	}
	if room.WinnerUserID != "" {
		snap["winnerUserId"] = room.WinnerUserID
	}
	if room.Metadata == nil {
		return snap
	}

	md := *room.Metadata
	if room.Status != models.RoomFinished {
		md.ServerSeed = ""
	}
	snap["metadata"] = &md

	if md.Coinflip != nil && md.Coinflip.Pending != nil {
		snap["_revealAt"] = md.Coinflip.Pending.RevealAt.UnixMilli()
	}
	if md.Dice != nil && md.Dice.Pending != nil {
		snap["_revealAt"] = md.Dice.Pending.RevealAt.UnixMilli()
		snap["turnLockedUntil"] = md.Dice.Pending.AdvanceAt.UnixMilli()
	}
	return snap
}

// normalizeCode trims user-supplied room codes; they are case sensitive.
func normalizeCode(code string) string {
	return strings.TrimSpace(code)
}
