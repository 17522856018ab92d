package handlers

import "net/http"

// SetupRoutes registers every HTTP and websocket route and wraps the mux in
// the CORS middleware.
func SetupRoutes(authHandlers *AuthHandlers, groupHandlers *GroupHandlers, messageHandlers *MessageHandlers, wsHandlers *WebSocketHandlers) http.Handler {
	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("POST /login", authHandlers.Login)
	mux.HandleFunc("POST /register", authHandlers.Register)

	// Direct messages and presence
	mux.HandleFunc("GET /users/online", messageHandlers.OnlineUsers)
	mux.HandleFunc("GET /messages/{peerID}", messageHandlers.DirectHistory)

	// Group routes
	mux.HandleFunc("GET /groups", groupHandlers.ListGroups)
	mux.HandleFunc("POST /groups", groupHandlers.CreateGroup)
	mux.HandleFunc("GET /groups/{id}/members", groupHandlers.GetMembers)
	mux.HandleFunc("POST /groups/{id}/members", groupHandlers.AddMember)
	mux.HandleFunc("DELETE /groups/{id}/members/{userID}", groupHandlers.RemoveMember)
	mux.HandleFunc("POST /groups/{id}/admins/{userID}", groupHandlers.PromoteAdmin)
	mux.HandleFunc("DELETE /groups/{id}/admins/{userID}", groupHandlers.DemoteAdmin)
	mux.HandleFunc("GET /groups/{id}/messages", groupHandlers.GetMessages)

	// WebSocket route
	mux.HandleFunc("GET /ws", wsHandlers.HandleWebSocket)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
