// Package api exposes the try-on service over HTTP. Handlers decode and
// validate kiosk, operator and webhook requests, call the orchestration,
// query and pairing services, and translate their errors into status codes
// and safe messages through MapErrorToStatusCode and GetSafeErrorMessage.
package api
