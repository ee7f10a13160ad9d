package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/platform/wechat"
	"github.com/phrazzld/tryon-api/internal/store"
)

// DefaultTokenTTL is how long a token can be confirmed after issue.
const DefaultTokenTTL = 300 * time.Second

// issueAttempts bounds retries when a fresh token collides with a stored one.
const issueAttempts = 3

// confirmAttempts bounds re-reads after losing a race on the token status.
const confirmAttempts = 3

// DeviceRegistry finds a device by hardware id, registering it on first contact.
type DeviceRegistry interface {
	Ensure(ctx context.Context, hardwareID string) (*domain.Device, error)
}

// CodeIssuer turns a token into something a shopper can scan.
type CodeIssuer interface {
	CreateSceneCode(ctx context.Context, scene string, ttl time.Duration) (*wechat.SceneCode, error)
}

// Issued is a freshly issued token and its scannable code.
type Issued struct {
	Token        string    `json:"token"`
	DeviceID     uuid.UUID `json:"device_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	CodeURL      string    `json:"code_url"`
	CodeImageURL string    `json:"code_image_url"`
}

// Resolution is what a poller learns about a token.
type Resolution struct {
	Token              string               `json:"token"`
	Status             domain.PairingStatus `json:"status"`
	DeviceID           uuid.UUID            `json:"device_id"`
	IdentityExternalID *string              `json:"identity_external_id,omitempty"`
	ExpiresAt          time.Time            `json:"expires_at"`
}

// Manager issues, resolves and confirms pairing tokens.
type Manager struct {
	tokens     store.PairingStore
	identities store.IdentityStore
	devices    DeviceRegistry
	codes      CodeIssuer
	ttl        time.Duration
	logger     *slog.Logger

	now      func() time.Time
	newToken func() (string, error)
}

// NewManager creates a Manager. A non-positive ttl uses DefaultTokenTTL.
func NewManager(
	tokens store.PairingStore,
	identities store.IdentityStore,
	devices DeviceRegistry,
	codes CodeIssuer,
	ttl time.Duration,
	logger *slog.Logger,
) (*Manager, error) {
	if tokens == nil || identities == nil || devices == nil || codes == nil {
		return nil, fmt.Errorf("pairing manager dependencies cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tokens:     tokens,
		identities: identities,
		devices:    devices,
		codes:      codes,
		ttl:        ttl,
		logger:     logger.With("component", "pairing_manager"),
		now:        func() time.Time { return time.Now().UTC() },
		newToken:   newToken,
	}, nil
}

// TTL is the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates an active token for the device with hardwareID, expiring any
// token the device still had active, and obtains a scannable code for it.
func (m *Manager) Issue(ctx context.Context, hardwareID string) (*Issued, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)

	device, err := m.devices.Ensure(ctx, hardwareID)
	if err != nil {
		return nil, err
	}
	if !device.Active {
		return nil, ErrDeviceInactive
	}

	var token *domain.PairingToken
	for attempt := 1; ; attempt++ {
		value, err := m.newToken()
		if err != nil {
			return nil, err
		}
		token, err = domain.NewPairingToken(value, device.ID, m.now(), m.ttl)
		if err != nil {
			return nil, err
		}

		invalidated, err := m.tokens.Issue(ctx, token)
		if err == nil {
			if invalidated > 0 {
				log.Info("superseded active pairing tokens", "device_id", device.ID, "count", invalidated)
			}
			break
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt >= issueAttempts {
			return nil, fmt.Errorf("failed to store pairing token: %w", err)
		}
		log.Warn("pairing token issue collided, retrying", "attempt", attempt)
	}

	code, err := m.codes.CreateSceneCode(ctx, token.Token, m.ttl)
	if err != nil {
		// An unscannable token must not stay confirmable.
		if _, expErr := m.tokens.Transition(ctx, token.Token, domain.PairingStatusActive,
			domain.PairingStatusExpired, store.PairingFields{}, m.now()); expErr != nil {
			log.Warn("failed to retire token without code", "error", expErr)
		}
		return nil, fmt.Errorf("failed to create scan code: %w", err)
	}

	pairingOutcomesTotal.WithLabelValues(outcomeIssued).Inc()
	log.Info("pairing token issued", "device_id", device.ID, "expires_at", token.ExpiresAt)

	return &Issued{
		Token:        token.Token,
		DeviceID:     device.ID,
		ExpiresAt:    token.ExpiresAt,
		CodeURL:      code.URL,
		CodeImageURL: code.ImageURL,
	}, nil
}

// Resolve reports a token's status. An active token past its expiry reads
// as expired, and that expiry is persisted on a best-effort basis.
func (m *Manager) Resolve(ctx context.Context, token string) (*Resolution, error) {
	p, err := m.get(ctx, token)
	if err != nil {
		return nil, err
	}

	now := m.now()
	status := p.EffectiveStatus(now)
	if status != p.Status {
		m.expire(ctx, p.Token, now)
	}

	return &Resolution{
		Token:              p.Token,
		Status:             status,
		DeviceID:           p.DeviceID,
		IdentityExternalID: p.IdentityExternalID,
		ExpiresAt:          p.ExpiresAt,
	}, nil
}

// Confirm consumes token on behalf of externalID and links the identity to
// the token's device. Confirming again with the same identity succeeds
// without changing the token.
func (m *Manager) Confirm(ctx context.Context, token, externalID string) (*domain.Identity, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrEmptyExternalID
	}
	log := logger.FromContextOrDefault(ctx, m.logger)

	for attempt := 1; ; attempt++ {
		p, err := m.get(ctx, token)
		if err != nil {
			if errors.Is(err, ErrTokenNotFound) {
				pairingOutcomesTotal.WithLabelValues(outcomeNotFound).Inc()
			}
			return nil, err
		}

		now := m.now()
		switch p.EffectiveStatus(now) {
		case domain.PairingStatusUsed:
			if p.IdentityExternalID == nil || *p.IdentityExternalID != externalID {
				pairingOutcomesTotal.WithLabelValues(outcomeConflict).Inc()
				log.Warn("pairing token confirmed by a second identity", "device_id", p.DeviceID)
				return nil, ErrPairingConflict
			}
			identity, err := m.identities.GetLink(ctx, externalID, p.DeviceID)
			switch {
			case errors.Is(err, store.ErrIdentityNotFound):
				// A previous delivery stored the token but not the identity.
				if identity, err = m.link(ctx, p, externalID); err != nil {
					return nil, err
				}
			case err != nil:
				return nil, fmt.Errorf("failed to read identity link: %w", err)
			}
			pairingOutcomesTotal.WithLabelValues(outcomeReconfirmed).Inc()
			return identity, nil

		case domain.PairingStatusExpired:
			if p.Status == domain.PairingStatusActive {
				m.expire(ctx, p.Token, now)
			}
			pairingOutcomesTotal.WithLabelValues(outcomeExpired).Inc()
			return nil, ErrPairingExpired
		}

		used, err := m.tokens.Transition(ctx, p.Token, domain.PairingStatusActive, domain.PairingStatusUsed,
			store.PairingFields{IdentityExternalID: externalID}, now)
		if err != nil {
			if errors.Is(err, store.ErrStaleTransition) && attempt < confirmAttempts {
				// Lost to a concurrent confirm, sweep or re-issue; re-read and decide again.
				continue
			}
			return nil, fmt.Errorf("failed to consume pairing token: %w", err)
		}

		identity, err := m.link(ctx, used, externalID)
		if err != nil {
			return nil, err
		}
		pairingOutcomesTotal.WithLabelValues(outcomeConfirmed).Inc()
		log.Info("device paired", "device_id", used.DeviceID, "identity_id", identity.ID)
		return identity, nil
	}
}

// SweepExpired persists the expiry of every overdue active token.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	n, err := m.tokens.ExpireOverdue(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue pairing tokens: %w", err)
	}
	if n > 0 {
		pairingOutcomesTotal.WithLabelValues(outcomeSwept).Add(float64(n))
		m.logger.Info("expired overdue pairing tokens", "count", n)
	}
	return n, nil
}

// HandleSubscriptionEvent confirms the token carried by a scan event.
// Events without a scene are ignored. Refusals (unknown, expired or already
// claimed tokens) are logged and swallowed since the provider cannot act on
// them; only infrastructure failures are returned.
func (m *Manager) HandleSubscriptionEvent(ctx context.Context, event *wechat.Event) error {
	scene, ok := event.SceneString()
	if !ok {
		return nil
	}
	log := logger.FromContextOrDefault(ctx, m.logger).With("event", event.Event)

	_, err := m.Confirm(ctx, scene, event.OpenID())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTokenNotFound),
		errors.Is(err, ErrPairingExpired),
		errors.Is(err, ErrPairingConflict),
		errors.Is(err, domain.ErrValidation):
		log.Info("pairing event refused", "reason", err.Error())
		return nil
	default:
		return err
	}
}

func (m *Manager) get(ctx context.Context, token string) (*domain.PairingToken, error) {
	p, err := m.tokens.Get(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrPairingTokenNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to load pairing token: %w", err)
	}
	return p, nil
}

func (m *Manager) link(ctx context.Context, p *domain.PairingToken, externalID string) (*domain.Identity, error) {
	linkedAt := m.now()
	if p.UsedAt != nil {
		linkedAt = *p.UsedAt
	}
	identity, err := m.identities.Link(ctx, externalID, p.DeviceID, linkedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}
	return identity, nil
}

// expire flips an overdue active token. Losing the race is fine: whoever won
// moved the token out of active.
func (m *Manager) expire(ctx context.Context, token string, now time.Time) {
	_, err := m.tokens.Transition(ctx, token, domain.PairingStatusActive, domain.PairingStatusExpired,
		store.PairingFields{}, now)
	if err != nil && !errors.Is(err, store.ErrStaleTransition) {
		logger.FromContextOrDefault(ctx, m.logger).Warn("failed to persist token expiry", "error", err)
	}
}
