package shared

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	HardwareID string `json:"hardware_id" validate:"required,max=128"`
	Label      string `json:"label"`
}

type selfValidating struct {
	err error
}

func (s selfValidating) Validate() error { return s.err }

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    testRequest
	}{
		{
			name: "valid body",
			body: `{"hardware_id":"kiosk-1","label":"lobby"}`,
			want: testRequest{HardwareID: "kiosk-1", Label: "lobby"},
		},
		{name: "empty body", body: "", wantErr: true},
		{name: "malformed json", body: `{"hardware_id":`, wantErr: true},
		{name: "unknown field", body: `{"hardware_id":"k","admin":true}`, wantErr: true},
		{name: "trailing data", body: `{"hardware_id":"k"}{"x":1}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			var got testRequest
			err := DecodeJSON(req, &got)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeJSONEmptyBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	var got testRequest
	assert.ErrorIs(t, DecodeJSON(req, &got), ErrEmptyBody)
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(&testRequest{HardwareID: "kiosk-1"}))
	assert.Error(t, ValidateRequest(&testRequest{}))
	assert.Error(t, ValidateRequest(&testRequest{HardwareID: strings.Repeat("x", 129)}))

	assert.NoError(t, ValidateRequest(selfValidating{}))
	assert.ErrorIs(t, ValidateRequest(selfValidating{err: assert.AnError}), assert.AnError)
}
