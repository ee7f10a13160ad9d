// Package worker is the boundary to the external render worker that turns a
// shopper photo and garment images into a try-on image.
//
// Submission is a single attempt: the Gateway classifies failures as
// ErrUnavailable (transient, the task stays pending) or ErrRejected
// (permanent, the task fails with the worker's reason) and leaves retry
// policy to the caller. Results come back asynchronously as webhooks, parsed
// by ParseWebhook and authenticated by a SignatureVerifier.
package worker
