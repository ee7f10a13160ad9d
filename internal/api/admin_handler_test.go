package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminHandler_ListDevices(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := NewAdminHandler(f.devices, f.log)
	_, err := f.devices.Ensure(context.Background(), "kiosk-2")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/devices?limit=10", nil)
	rec := httptest.NewRecorder()
	h.ListDevices(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[DeviceListResponse](t, rec)
	assert.Len(t, resp.Devices, 2)
	assert.Equal(t, 10, resp.Limit)
}

func TestAdminHandler_SetDeviceStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := NewAdminHandler(f.devices, f.log)

	patch := func(id, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/admin/devices/"+id+"/status", strings.NewReader(body))
		return serve(http.MethodPatch, "/api/admin/devices/{id}/status", h.SetDeviceStatus, req)
	}

	rec := patch(f.device.ID.String(), `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[DeviceResponse](t, rec).Active)

	device, err := f.devices.GetByHardwareID(context.Background(), f.device.HardwareID)
	require.NoError(t, err)
	assert.False(t, device.Active, "status change must reach cached lookups")

	assert.Equal(t, http.StatusBadRequest, patch(f.device.ID.String(), `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, patch("nope", `{"active":true}`).Code)
	assert.Equal(t, http.StatusNotFound, patch(uuid.NewString(), `{"active":true}`).Code)
}

func TestAdminHandler_SetDeviceAffiliate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	h := NewAdminHandler(f.devices, f.log)

	patch := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPatch, "/api/admin/devices/"+f.device.ID.String()+"/affiliate",
			strings.NewReader(body))
		return serve(http.MethodPatch, "/api/admin/devices/{id}/affiliate", h.SetDeviceAffiliate, req)
	}

	rec := patch(`{"affiliate_id":"  store-42  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[DeviceResponse](t, rec)
	require.NotNil(t, resp.AffiliateID)
	assert.Equal(t, "store-42", *resp.AffiliateID)

	rec = patch(`{"affiliate_id":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[DeviceResponse](t, rec).AffiliateID)

	assert.Equal(t, http.StatusBadRequest, patch(`{"affiliate_id":"`+strings.Repeat("a", 65)+`"}`).Code)
}
