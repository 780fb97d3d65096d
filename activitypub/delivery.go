package activitypub

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/fedcore/domain"
	"github.com/deemkeen/fedcore/logging"
	"github.com/deemkeen/fedcore/util"
	"go.uber.org/zap"
)

const (
	deliveryBatch       = 50
	maxDeliveryAttempts = 10
)

// backoff schedule in minutes, indexed by attempt
var deliveryBackoff = []int{1, 5, 15, 60, 240, 1440}

// Transport posts a serialized activity to a remote inbox
type Transport interface {
	Deliver(ctx context.Context, inbox string, body []byte) error
}

// HTTPTransport delivers over HTTP. Sign, when set, is applied to every
// request before it is sent.
type HTTPTransport struct {
	Client *http.Client
	Sign   func(*http.Request) error
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *HTTPTransport) Deliver(ctx context.Context, inbox string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.GetNameAndVersion()+" ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	if t.Sign != nil {
		if err := t.Sign(req); err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
	return nil
}

// DeliveryWorker drains the delivery queue with exponential backoff
type DeliveryWorker struct {
	queue     DeliveryQueue
	transport Transport
	interval  time.Duration
	metrics   *Metrics
	log       *zap.SugaredLogger
}

func NewDeliveryWorker(queue DeliveryQueue, transport Transport, interval time.Duration, metrics *Metrics) *DeliveryWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &DeliveryWorker{
		queue:     queue,
		transport: transport,
		interval:  interval,
		metrics:   metrics,
		log:       logging.Component("delivery"),
	}
}

// Run processes the queue every interval until ctx is cancelled
func (w *DeliveryWorker) Run(ctx context.Context) {
	w.log.Info("Starting ActivityPub delivery worker...")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Stopping ActivityPub delivery worker")
			return
		case <-ticker.C:
			w.ProcessQueue(ctx)
		}
	}
}

// ProcessQueue processes pending deliveries from the queue
func (w *DeliveryWorker) ProcessQueue(ctx context.Context) {
	items, err := w.queue.ReadPendingDeliveries(deliveryBatch)
	if err != nil {
		w.log.Warnf("Failed to read queue: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}

	w.log.Debugf("Processing %d pending deliveries", len(items))

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, item)
	}
}

func (w *DeliveryWorker) deliver(ctx context.Context, item domain.DeliveryQueueItem) {
	err := w.transport.Deliver(ctx, item.InboxURI, []byte(item.ActivityJSON))
	if err == nil {
		w.log.Debugf("Successfully delivered to %s", item.InboxURI)
		w.metrics.delivery("delivered")
		if err := w.queue.DeleteDelivery(item.Id); err != nil {
			w.log.Warnf("Failed to remove delivered item %s: %v", item.Id, err)
		}
		return
	}

	item.Attempts++
	if item.Attempts >= maxDeliveryAttempts {
		w.log.Warnf("Giving up on delivery to %s after %d attempts", item.InboxURI, item.Attempts)
		w.metrics.delivery("abandoned")
		w.queue.DeleteDelivery(item.Id)
		return
	}

	backoffMinutes := deliveryBackoff[min(item.Attempts-1, len(deliveryBackoff)-1)]
	item.NextRetryAt = time.Now().Add(time.Duration(backoffMinutes) * time.Minute)
	w.log.Infof("Delivery to %s failed (attempt %d), retry in %dm: %v", item.InboxURI, item.Attempts, backoffMinutes, err)
	w.metrics.delivery("failed")
	if err := w.queue.UpdateDeliveryAttempt(item.Id, item.Attempts, item.NextRetryAt); err != nil {
		w.log.Warnf("Failed to reschedule %s: %v", item.Id, err)
	}
}
