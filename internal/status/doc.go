// Package status exposes run history for serve mode.
//
// Store keeps the last N pipeline results. Handler serves them under
// /api/v1/ and Hub streams every finished run to WebSocket clients on
// /ws/stream. APIKeyMiddleware optionally guards both.
package status
