package wechat

import (
	"errors"
	"fmt"
)

// Common errors returned by the wechat package
var (
	// ErrAPI wraps every non-zero errcode returned by the platform.
	ErrAPI = errors.New("wechat api error")

	// ErrMalformedEvent is returned when an event callback cannot be parsed.
	ErrMalformedEvent = errors.New("malformed wechat event")
)

// APIError is a platform error response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: errcode=%d errmsg=%s", ErrAPI.Error(), e.Code, e.Message)
}

// Unwrap lets errors.Is(err, ErrAPI) match.
func (e *APIError) Unwrap() error {
	return ErrAPI
}

// apiStatus is embedded in every platform response.
type apiStatus struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (s apiStatus) err() error {
	if s.ErrCode == 0 {
		return nil
	}
	return &APIError{Code: s.ErrCode, Message: s.ErrMsg}
}
