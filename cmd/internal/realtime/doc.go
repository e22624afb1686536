// Package realtime pushes Device Registry events to connected admin
// dashboards over WebSocket.
package realtime
