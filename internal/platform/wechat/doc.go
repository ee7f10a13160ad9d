// Package wechat talks to the WeChat Official Account platform, the identity
// provider shoppers use to pair with a kiosk.
//
// The client covers what the service needs: temporary scene QR codes that
// carry a pairing token, customer-service news messages that deliver a
// finished try-on, and the signed XML event callbacks (subscribe and SCAN)
// that confirm a pairing. Access tokens are cached and refreshed through an
// oauth2.TokenSource.
package wechat
