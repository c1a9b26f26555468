package server

import (
	"vibely/internal/middleware"
	"vibely/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketChatHandler serves GET /api/ws/chat. After the upgrade the client
// sends {"type":"subscribe","key":"<low>_<high>"} frames and receives a full
// snapshot of the conversation on subscribe and after every change.
func (s *Server) WebSocketChatHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userID, _ := conn.Locals("userID").(uint)
		if userID == 0 {
			refuse(conn, "unauthorized")
			return
		}
		if s.chatHub == nil {
			refuse(conn, "chat unavailable")
			return
		}

		client, err := s.chatHub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("chat connection refused", "user_id", userID, "error", err)
			refuse(conn, err.Error())
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// refuse sends a single error frame and closes the connection.
func refuse(conn *websocket.Conn, reason string) {
	_ = conn.WriteJSON(notifications.Frame{Type: notifications.FrameError, Message: reason})
	_ = conn.Close()
}
