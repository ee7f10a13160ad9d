// Package mocks provides shared test doubles for the interfaces that reach
// outside the process: the render worker gateway, the identity provider's
// code issuer and messenger, object storage URL resolution and session
// tokens.
//
// Each mock has a function field per method. A nil field falls back to a
// fixed, successful behavior so most tests only set what they assert on:
//
//	gateway := &mocks.MockGateway{
//	    SubmitFn: func(ctx context.Context, req worker.SubmitRequest) (string, error) {
//	        return "", worker.ErrUnavailable
//	    },
//	}
package mocks
