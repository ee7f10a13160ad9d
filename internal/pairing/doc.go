// Package pairing links an anonymous kiosk device to a shopper identity
// through a short-lived scene token.
//
// The kiosk asks for a token and shows it as a scannable code. The shopper
// scans it with the identity provider's app, which later delivers a
// subscription event carrying the token and the shopper's external id.
// Confirm consumes the token exactly once; repeated deliveries of the same
// event are harmless, a second identity is refused, and an elapsed token is
// refused whether or not the expiry sweep has reached it yet.
package pairing
