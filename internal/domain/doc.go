// Package domain contains the core entities of the try-on service: devices,
// identities, pairing tokens and try-on tasks, together with the state
// machines that govern their status changes. It has no knowledge of storage
// or transport.
package domain
