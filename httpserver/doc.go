/*
Package httpserver exposes the registry client over HTTP and WebSocket so a
separate view layer can drive it.

# API Endpoints

  - GET /api/session - Current wallet connection state
  - POST /api/session/connect - Request wallet authorization
  - POST /api/session/disconnect - Clear the connection
  - GET /api/binding - Current registry binding state
  - GET /api/notifications - Queued notifications, oldest first
  - DELETE /api/notifications/{id} - Dismiss a notification
  - POST /api/components - Register a component
  - GET /api/components/{id} - Component details
  - GET /api/components/{id}/history - Component history, oldest first
  - POST /api/components/{id}/transfer - Transfer ownership
  - POST /api/components/{id}/status - Update status
  - GET /api/roles/{role}/{account} - Role membership check
  - GET /api/catalog - Components seen by this client
  - POST /api/catalog/{id} - Look up a component and open its details view
  - GET /ws - Stream of state publications

# Health Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Mark the server as not ready
  - GET /undrain - Mark the server as ready

# WebSocket Stream

Every message on /ws is a JSON object {"type": ..., "data": ...}. On connect
the client receives the current session, binding, notifications and catalog.
Afterwards it receives each publication as it happens:

  - session: interfaces.ConnectionState
  - binding: interfaces.BindingUpdate, carrying the registry event if any
  - notifications: the full notification queue
  - catalog: the full component list
  - navigate: {"route": ..., "params": {...}}

Errors are returned as {"error": message} with a status derived from the
error kind: 400 invalid input, 403 user rejected, 503 binding or provider
unavailable, 504 timeout, 422 failed transaction and 502 for other remote
call failures.
*/
package httpserver
