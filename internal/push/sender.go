package push

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"keepsake-go/internal/metrics"
	"keepsake-go/internal/models"
)

// SubscriptionStore is the part of the store the sender needs.
type SubscriptionStore interface {
	GetPushSubscriptionsByUser(ctx context.Context, userID int) ([]models.PushSubscription, error)
	DeletePushSubscriptions(ctx context.Context, endpoints []string) error
}

// Result aggregates one fan-out. Expired subscriptions count as failed and
// are also reported in Pruned once deleted.
type Result struct {
	Sent   int
	Failed int
	Pruned int
	Err    error
}

// Sender fans a notification out to every subscription of a user.
type Sender struct {
	subs       SubscriptionStore
	dispatcher Dispatcher
	log        *logrus.Entry
}

func NewSender(subs SubscriptionStore, dispatcher Dispatcher) *Sender {
	return &Sender{
		subs:       subs,
		dispatcher: dispatcher,
		log:        logrus.WithField("component", "push_sender"),
	}
}

// SendToUser never returns an error directly; store failures end up in
// Result.Err with zero counts.
func (s *Sender) SendToUser(ctx context.Context, userID int, payload Payload) Result {
	subs, err := s.subs.GetPushSubscriptionsByUser(ctx, userID)
	if err != nil {
		s.log.Errorf("Failed to get subscriptions for user %d: %v", userID, err)
		return Result{Err: fmt.Errorf("load subscriptions: %w", err)}
	}

	if len(subs) == 0 {
		s.log.Debugf("No push subscriptions found for user %d", userID)
		return Result{}
	}

	var res Result
	var expired []string

	for _, sub := range subs {
		outcome, err := s.dispatcher.Dispatch(ctx, sub, payload)
		switch outcome {
		case Delivered:
			res.Sent++
		case Expired:
			res.Failed++
			expired = append(expired, sub.Endpoint)
			s.log.Debugf("Push endpoint expired for user %d: %v", userID, err)
		default:
			res.Failed++
			s.log.Warnf("Failed to send push to %s: %v", shortEndpoint(sub.Endpoint), err)
		}
	}

	if len(expired) > 0 {
		if err := s.subs.DeletePushSubscriptions(ctx, expired); err != nil {
			s.log.Errorf("Failed to delete %d expired subscriptions: %v", len(expired), err)
			return Result{Err: fmt.Errorf("delete expired subscriptions: %w", err)}
		}
		res.Pruned = len(expired)
		metrics.SubscriptionsPruned.Add(float64(len(expired)))
		s.log.Infof("Cleaned up %d expired subscriptions", len(expired))
	}

	return res
}

func shortEndpoint(endpoint string) string {
	const n = 50
	if len(endpoint) <= n {
		return endpoint
	}
	return endpoint[:n] + "..."
}
