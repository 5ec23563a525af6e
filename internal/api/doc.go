// Package api implements the HTTP REST API and WebSocket server for the
// Gray Logic IoT core.
//
// This package provides:
//   - REST endpoints for onboarding, manual device actions, automation
//     settings, sensor history and the notification inbox
//   - a WebSocket hub that relays engine events to subscribed clients
//   - bearer JWT validation (tokens are minted out of band)
//   - Prometheus request metrics on the configured metrics path
//
// # Architecture
//
// Handlers are thin. Every state change goes through the domain services
// (device.Registry, action.Engine, automation.Service, notification.Service),
// which own their transactions and call back into the Hub to broadcast.
//
// # Errors
//
// Domain errors are classified with the apperr taxonomy: NotFound becomes
// 404, ValidationError 400, anything else 500. Bodies use the shape
// {status, code, message}.
package api
