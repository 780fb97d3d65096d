package activitypub

import (
	"encoding/json"
	"fmt"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"go.uber.org/zap"
)

// Sender hands outbound activities to the delivery queue. It never waits
// for the remote side; the delivery worker owns retries.
type Sender struct {
	queue DeliveryQueue
	log   *zap.SugaredLogger
}

func NewSender(queue DeliveryQueue) *Sender {
	return &Sender{queue: queue, log: logging.Component("sender")}
}

// Send queues a for delivery to the inbox of each recipient actor
func (s *Sender) Send(a *domain.Activity, recipients ...string) error {
	if s == nil || s.queue == nil {
		return nil
	}
	if a.Context == nil {
		a.Context = domain.ActivityStreamsContext
	}
	buf, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", a.Type, err)
	}
	for _, r := range recipients {
		if r == "" {
			continue
		}
		item := &domain.DeliveryQueueItem{
			InboxURI:     inboxFor(r),
			ActivityJSON: string(buf),
		}
		if err := s.queue.EnqueueDelivery(item); err != nil {
			return fmt.Errorf("failed to queue %s for %s: %w", a.Type, r, err)
		}
		s.log.Debugf("Queued %s for %s", a.Type, item.InboxURI)
	}
	return nil
}
