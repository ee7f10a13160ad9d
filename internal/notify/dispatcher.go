package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/phrazzld/tryon-api/internal/platform/wechat"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification outcomes
const (
	resultSent       = "sent"
	resultNoIdentity = "no_identity"
	resultUnverified = "unverified"
	resultFailed     = "failed"
	resultDropped    = "dropped"
)

var notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tryon_notifications_total",
	Help: "Completion notifications by result.",
}, []string{"result"})

// Message text sent with every completed render.
const (
	ArticleTitle       = "Your try-on is ready"
	ArticleDescription = "Tap to see your look and shop the outfit."
)

// IdentityReader loads the identity a task was created for.
type IdentityReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Identity, error)
}

// URLResolver turns a stored result reference into a fetchable URL.
type URLResolver interface {
	ResolveURL(ctx context.Context, ref string) (string, error)
}

// Messenger delivers a link message to a provider user.
type Messenger interface {
	SendArticle(ctx context.Context, openID string, article wechat.Article) error
}

// Dispatcher sends completion notifications.
type Dispatcher struct {
	identities IdentityReader
	urls       URLResolver
	messenger  Messenger
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(identities IdentityReader, urls URLResolver, messenger Messenger, logger *slog.Logger) (*Dispatcher, error) {
	if identities == nil || urls == nil || messenger == nil {
		return nil, fmt.Errorf("notification dispatcher dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		identities: identities,
		urls:       urls,
		messenger:  messenger,
		logger:     logger.With("component", "notify_dispatcher"),
	}, nil
}

// NotifyCompletion messages the identity a completed task was created for.
// Tasks without an identity, or whose identity is no longer verified, are
// skipped without error.
func (d *Dispatcher) NotifyCompletion(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, d.logger).With("task_id", task.ID)

	if task.IdentityID == nil {
		notificationsTotal.WithLabelValues(resultNoIdentity).Inc()
		log.Debug("completed task has no identity to notify")
		return nil
	}
	identity, err := d.identities.GetByID(ctx, *task.IdentityID)
	if err != nil {
		if errors.Is(err, store.ErrIdentityNotFound) {
			notificationsTotal.WithLabelValues(resultNoIdentity).Inc()
			log.Warn("task identity no longer exists", "identity_id", *task.IdentityID)
			return nil
		}
		notificationsTotal.WithLabelValues(resultFailed).Inc()
		return fmt.Errorf("failed to load identity: %w", err)
	}
	if !identity.Verified {
		notificationsTotal.WithLabelValues(resultUnverified).Inc()
		log.Info("skipping notification for unverified identity", "identity_id", identity.ID)
		return nil
	}
	if task.ResultLocation == nil {
		notificationsTotal.WithLabelValues(resultFailed).Inc()
		return fmt.Errorf("task %s has no result to send", task.ID)
	}

	resultURL, err := d.urls.ResolveURL(ctx, *task.ResultLocation)
	if err != nil {
		notificationsTotal.WithLabelValues(resultFailed).Inc()
		return fmt.Errorf("failed to resolve result: %w", err)
	}

	link := task.PrimaryPurchaseURL()
	if link == "" {
		link = resultURL
	}
	err = d.messenger.SendArticle(ctx, identity.ExternalID, wechat.Article{
		Title:       ArticleTitle,
		Description: ArticleDescription,
		URL:         link,
		PicURL:      resultURL,
	})
	if err != nil {
		notificationsTotal.WithLabelValues(resultFailed).Inc()
		return fmt.Errorf("failed to send notification: %w", err)
	}

	notificationsTotal.WithLabelValues(resultSent).Inc()
	log.Info("completion notification sent", "identity_id", identity.ID)
	return nil
}
