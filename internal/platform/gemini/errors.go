package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the worker configuration is unusable.
	ErrInvalidConfig = errors.New("invalid gemini render configuration")

	// ErrContentBlocked is returned when the model refuses the inputs on safety grounds.
	ErrContentBlocked = errors.New("content blocked by model safety filters")

	// ErrNoImage is returned when the model answers without an image part.
	ErrNoImage = errors.New("model returned no image")

	// ErrFetchInput is returned when a photo or garment image cannot be downloaded.
	ErrFetchInput = errors.New("failed to fetch render input")
)
