// Package storage keeps shopper photos and rendered try-on images in an
// S3-compatible bucket and hands out short-lived presigned URLs for them.
//
// Stored references are object keys. Anything that already looks like an
// absolute http(s) URL is treated as externally hosted and passed through
// untouched by ResolveURL.
package storage
