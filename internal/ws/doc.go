// Package ws implements the WebSocket stream for the releasedeck dashboard.
//
// Hub manages a set of connected clients and broadcasts the current portal
// state to all of them on a configurable interval (default 5s in production).
//
// New(builds, monitors, services, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker — blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// portal state immediately on connect, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "portal",
//	  "data":  { /* same schema as GET /api/v1/portal */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. WebSocket endpoint is mounted at /ws/stream by the server.
package ws
