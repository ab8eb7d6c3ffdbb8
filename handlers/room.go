package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"pvp-room-system/middleware"
	"pvp-room-system/services"
)

// SetupRoomRoutes wires the room engine API under /pvp. All mutating actions
// sit behind the gateway user context and the idempotency replay cache.
func SetupRoomRoutes(app *fiber.App, rooms *services.RoomService, health *services.HealthService,
	hub *services.Hub, idem *middleware.IdempotencyStore) {

	pvp := app.Group("/pvp")

	// Reads
	pvp.Get("/rooms", rooms.ListRooms)
	pvp.Get("/:roomId", rooms.GetRoom)
	pvp.Get("/:roomId/verify", rooms.VerifyRoom)

	// Mutations
	secured := pvp.Group("/", middleware.UserContextMiddleware(), middleware.Idempotency(idem))
	secured.Post("/create", rooms.CreateRoom)
	secured.Post("/:roomId/join", rooms.JoinRoom)
	secured.Post("/join/:roomId", rooms.JoinRoom) // alias kept for older clients
	secured.Post("/:roomId/ready", rooms.SetReady)
	secured.Post("/:roomId/start", rooms.StartRoom)
	secured.Post("/:roomId/roll", rooms.Roll)
	secured.Post("/:roomId/leave", rooms.LeaveRoom)
	secured.Delete("/:roomId", rooms.DeleteRoom)
	secured.Post("/:roomId/invite", rooms.InviteToRoom)

	// Operational health and seed rotation
	app.Get("/admin/pvp/health", health.Health)
	app.Post("/admin/pvp/rotate-seed", health.RotateSeed)

	// Real-time channel
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("ws_user_id", c.Get("X-User-ID", c.Query("userId")))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("ws_user_id").(string)
		hub.Serve(conn, uid)
	}))
}
