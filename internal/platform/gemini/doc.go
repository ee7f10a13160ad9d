// Package gemini renders try-on images in-process with Google's Gemini image
// generation models.
//
// RenderWorker satisfies worker.Gateway so the orchestrator cannot tell it
// apart from the external HTTP worker: Submit enqueues a render on the jobs
// worker pool and returns a job id immediately, and the outcome is delivered
// later through a CompletionSink exactly like an external webhook.
package gemini
