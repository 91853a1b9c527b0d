package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/alim08/tradesite/pkg/upstream"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"resty.dev/v3"
)

// Limits concurrent webhook deliveries
const maxWorkers = 8

// contactSource is the stream of accepted contact messages.
type contactSource interface {
	ReadContacts(ctx context.Context, lastID string, count int64, block time.Duration) ([]redis.XMessage, error)
}

type relay struct {
	source  contactSource
	webhook *resty.Client // nil logs messages instead of delivering them
	sem     chan struct{}
	wg      sync.WaitGroup
}

func newRelay(source contactSource, webhookURL string, timeout time.Duration) *relay {
	r := &relay{
		source: source,
		sem:    make(chan struct{}, maxWorkers),
	}
	if webhookURL != "" {
		r.webhook = upstream.NewHTTPClient(webhookURL, timeout)
	}
	return r
}

// run drains the stream from lastID until ctx is done, then waits for
// in-flight deliveries.
func (r *relay) run(ctx context.Context, lastID string) {
	logger.Log.Info("contact relay started", zap.String("from", lastID), zap.Bool("webhook", r.webhook != nil))
	defer r.wg.Wait()

	for ctx.Err() == nil {
		// 1) Read up to 100 messages, wait up to 500ms
		msgs, err := r.source.ReadContacts(ctx, lastID, 100, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("XREAD error", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		// 2) Deliver each message in parallel (bounded). A full pool
		// holds the cursor back instead of skipping messages.
		for _, msg := range msgs {
			lastID = msg.ID
			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			r.wg.Add(1)
			go func(m redis.XMessage) {
				defer func() {
					<-r.sem
					r.wg.Done()
				}()
				r.handle(ctx, m)
			}(msg)
		}
	}
}

func (r *relay) handle(ctx context.Context, msg redis.XMessage) {
	contact, err := decodeContact(msg)
	if err != nil {
		logger.Log.Warn("discarding contact message", zap.String("id", msg.ID), zap.Error(err))
		metrics.ContactRelayed.WithLabelValues("invalid").Inc()
		return
	}

	if r.webhook == nil {
		logger.Log.Info("contact message received",
			zap.String("id", contact.ID),
			zap.String("subject", contact.Subject),
			zap.String("email", contact.Email),
			zap.String("locale", contact.Locale))
		metrics.ContactRelayed.WithLabelValues("logged").Inc()
		return
	}

	if err := r.deliver(ctx, contact); err != nil {
		logger.Log.Error("failed to deliver contact message", zap.String("id", contact.ID), zap.Error(err))
		metrics.ContactRelayed.WithLabelValues("failed").Inc()
		return
	}
	metrics.ContactRelayed.WithLabelValues("delivered").Inc()
}

func (r *relay) deliver(ctx context.Context, contact models.ContactMessage) (err error) {
	start := time.Now()
	defer func() { upstream.Observe("support_webhook", start, err) }()

	resp, err := r.webhook.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(contact).
		Post("")
	if err != nil {
		return upstream.ClassifyTransportError(err)
	}
	if !resp.IsSuccess() {
		return upstream.ClassifyHTTPError(resp.StatusCode(), "")
	}
	return nil
}

// decodeContact parses the payload field written by the contact form.
func decodeContact(msg redis.XMessage) (models.ContactMessage, error) {
	var contact models.ContactMessage
	var raw []byte
	switch v := msg.Values["payload"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return contact, fmt.Errorf("message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal(raw, &contact); err != nil {
		return contact, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	if contact.ID == "" {
		return contact, fmt.Errorf("message %s: payload without id", msg.ID)
	}
	return contact, nil
}

func (r *relay) close() {
	if r.webhook != nil {
		r.webhook.Close()
	}
}
