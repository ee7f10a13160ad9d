package memory

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
)

// Stored values are copied on the way in and out so callers never alias
// store state.

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.Garments = append([]domain.Garment(nil), t.Garments...)
	c.IdentityID = cloneUUID(t.IdentityID)
	c.ExternalJobID = cloneString(t.ExternalJobID)
	c.ResultLocation = cloneString(t.ResultLocation)
	c.ErrorDetail = cloneString(t.ErrorDetail)
	return &c
}

func cloneDevice(d *domain.Device) *domain.Device {
	c := *d
	c.AffiliateID = cloneString(d.AffiliateID)
	return &c
}

func clonePairing(p *domain.PairingToken) *domain.PairingToken {
	c := *p
	c.IdentityExternalID = cloneString(p.IdentityExternalID)
	c.UsedAt = cloneTime(p.UsedAt)
	return &c
}
