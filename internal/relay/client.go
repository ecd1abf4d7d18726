package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/marketplace"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the gateway root, e.g. http://localhost:8080.
	BaseURL string
	// Secrets maps each sender to its shared secret. A sender without one
	// is sent unsigned.
	Secrets map[webhook.Sender]string
	// QPS caps the send rate. Zero or less disables pacing.
	QPS     float64
	Burst   int
	Timeout time.Duration
}

// Delivery is one webhook to send.
type Delivery struct {
	Sender    webhook.Sender
	EventType webhook.EventType
	Body      []byte
}

// Result is the gateway's answer to one delivery.
type Result struct {
	StatusCode int
	Latency    time.Duration
	Body       []byte
}

// Summary tallies a run.
type Summary struct {
	Sent     int
	Failed   int
	ByStatus map[int]int
	Elapsed  time.Duration
}

// Client signs and posts deliveries at a bounded rate.
type Client struct {
	baseURL string
	secrets map[webhook.Sender]string
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("relay: base URL is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit, burst := rate.Inf, cfg.Burst
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
		if burst <= 0 {
			burst = 1
		}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secrets: cfg.Secrets,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
		now:     time.Now,
	}, nil
}

// Send waits for a rate slot, then posts d to the sender's intake path.
func (c *Client) Send(ctx context.Context, d Delivery) (Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}
	return c.post(ctx, d)
}

func (c *Client) post(ctx context.Context, d Delivery) (Result, error) {
	url := c.baseURL + "/api/v1/webhooks/" + d.Sender.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(d.Body))
	if err != nil {
		return Result{}, err
	}
	prefix := d.Sender.HeaderPrefix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(prefix+"-Event", string(d.EventType))
	req.Header.Set(prefix+"-Timestamp", strconv.FormatInt(c.now().Unix(), 10))
	if secret := c.secrets[d.Sender]; secret != "" {
		req.Header.Set(prefix+"-Signature", marketplace.Sign(d.Body, secret))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("relay: post %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Result{}, err
	}
	return Result{StatusCode: resp.StatusCode, Latency: time.Since(start), Body: body}, nil
}

// Run sends count deliveries produced by next and tallies the answers.
// Transport errors are counted and logged. The run stops early only when
// ctx ends or its deadline leaves no room for the next rate slot.
func (c *Client) Run(ctx context.Context, count int, next func(i int) (Delivery, error)) (Summary, error) {
	sum := Summary{ByStatus: make(map[int]int)}
	start := time.Now()

	for i := 0; i < count; i++ {
		d, err := next(i)
		if err != nil {
			return sum, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}
		res, err := c.post(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			}
			sum.Failed++
			c.log.Warn("Delivery failed", zap.String("sender", d.Sender.String()), zap.Error(err))
			continue
		}
		sum.Sent++
		sum.ByStatus[res.StatusCode]++
		c.log.Debug("Delivery sent",
			zap.String("sender", d.Sender.String()),
			zap.String("event_type", string(d.EventType)),
			zap.Int("status", res.StatusCode),
			zap.Duration("latency", res.Latency),
		)
	}
	sum.Elapsed = time.Since(start)
	return sum, nil
}
