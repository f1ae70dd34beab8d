package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/retry"
)

// Config configures webhook delivery
type Config struct {
	URLs []string

	// Secret signs each body with HMAC-SHA256; empty sends no signature
	Secret          string
	SignatureHeader string

	// Events limits delivery to these event types; empty means all
	Events []string

	// Timeout bounds a single POST
	Timeout   time.Duration
	QueueSize int

	// Retry is applied per endpoint; nil means a single attempt
	Retry   retry.Strategy
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Notifier POSTs published events to every configured URL from a single
// background worker. Publish never blocks; events are dropped when the
// queue is full.
type Notifier struct {
	urls      []string
	secret    string
	sigHeader string
	events    map[string]struct{}
	client    *http.Client
	retry     retry.Strategy
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	queue    chan Payload
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	// ctx is cancelled when Stop gives up waiting for in-flight deliveries
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNotifier validates the URLs and starts the delivery worker
func NewNotifier(cfg Config) (*Notifier, error) {
	if len(cfg.URLs) == 0 {
		return nil, errors.New("at least one webhook URL is required")
	}
	for _, raw := range cfg.URLs {
		if err := validateURL(raw); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy := cfg.Retry
	if strategy == nil {
		strategy = retry.NoRetry{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultWebhookTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = constants.DefaultWebhookQueueSize
	}
	sigHeader := cfg.SignatureHeader
	if sigHeader == "" {
		sigHeader = constants.DefaultWebhookSignatureHeader
	}

	var events map[string]struct{}
	if len(cfg.Events) > 0 {
		events = make(map[string]struct{}, len(cfg.Events))
		for _, e := range cfg.Events {
			events[e] = struct{}{}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		urls:      append([]string(nil), cfg.URLs...),
		secret:    cfg.Secret,
		sigHeader: sigHeader,
		events:    events,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry:    strategy,
		metrics:  cfg.Metrics,
		logger:   logger.Named("webhook"),
		now:      time.Now,
		queue:    make(chan Payload, queueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go n.run()
	return n, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("webhook URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL %q has no host", raw)
	}
	return nil
}

// Publish queues an event for delivery
func (n *Notifier) Publish(eventType string, data interface{}) {
	if n.events != nil {
		if _, ok := n.events[eventType]; !ok {
			return
		}
	}

	select {
	case <-n.done:
		return
	default:
	}

	p := Payload{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: n.now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	select {
	case n.queue <- p:
	default:
		n.logger.Warn("webhook queue full, dropping event",
			zap.String("event_id", p.ID),
			zap.String("event_type", eventType))
		n.record(eventType, "dropped")
	}
}

// Stop stops accepting events and waits for queued ones to be delivered.
// When ctx expires first, in-flight requests are cancelled and ctx's error
// is returned.
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() { close(n.done) })

	select {
	case <-n.finished:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.finished
		return ctx.Err()
	}
}

func (n *Notifier) run() {
	defer close(n.finished)
	for {
		select {
		case p := <-n.queue:
			n.deliver(p)
		case <-n.done:
			for {
				select {
				case p := <-n.queue:
					n.deliver(p)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(p Payload) {
	if n.ctx.Err() != nil {
		n.record(p.EventType, "dropped")
		return
	}

	body, err := json.Marshal(p)
	if err != nil {
		n.logger.Error("failed to encode webhook payload",
			zap.String("event_type", p.EventType),
			zap.Error(err))
		n.record(p.EventType, "failed")
		return
	}

	for _, target := range n.urls {
		err := n.retry.Execute(n.ctx, func(ctx context.Context) error {
			return n.post(ctx, target, body, p)
		})
		if err != nil {
			n.logger.Warn("webhook delivery failed",
				zap.String("url", target),
				zap.String("event_id", p.ID),
				zap.String("event_type", p.EventType),
				zap.Error(err))
			n.record(p.EventType, "failed")
			continue
		}
		n.logger.Debug("webhook delivered",
			zap.String("url", target),
			zap.String("event_id", p.ID))
		n.record(p.EventType, "delivered")
	}
}

func (n *Notifier) post(ctx context.Context, target string, body []byte, p Payload) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "contractforge-webhook/1.0")
	req.Header.Set("X-Webhook-ID", p.ID)
	req.Header.Set("X-Event-Type", p.EventType)
	if n.secret != "" {
		req.Header.Set(n.sigHeader, "sha256="+Sign(body, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}

func (n *Notifier) record(event, result string) {
	if n.metrics != nil {
		n.metrics.RecordWebhook(event, result)
	}
}

// Sign returns the hex HMAC-SHA256 of payload under secret
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header value, with or without the
// "sha256=" prefix, against payload. Receivers use it to authenticate
// deliveries.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}
