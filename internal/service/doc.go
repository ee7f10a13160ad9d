// Package service contains the application-specific use cases of the try-on
// backend. It orchestrates domain objects, stores (defined in internal/store)
// and external collaborators to fulfill application features.
//
// Key components:
//
// 1. Orchestrator:
//   - Creates try-on tasks and submits them to the render worker
//   - Applies worker webhooks, client cancellations and timeout sweeps
//   - Every status change goes through the task store's compare-and-set, and
//     only the writer that wins a transition emits an event for it
//
// 2. QueryService:
//   - Read-only views for polling kiosks (task status, task history, pairing status)
//
// 3. DeviceService:
//   - Kiosk registration on first contact and operator administration,
//     fronted by a small expiring LRU cache
//
// 4. Error Handling:
//   - Sentinel errors for expected conditions; unexpected failures are wrapped
//     in ServiceError
//   - The API layer maps service errors to HTTP status codes
//
// The service layer depends on domain entities and store interfaces but never
// on specific infrastructure implementations.
package service
