// Command relay sends signed synthetic marketplace webhooks to a running
// gateway. Secrets come from the same WEBHOOK_SENDERS_* settings the
// gateway reads, so a local run verifies end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/relay"
)

func main() {
	var (
		target   string
		senders  string
		events   string
		count    int
		qps      float64
		burst    int
		seed     uint64
		logLevel string
	)
	flag.StringVar(&target, "target", "http://localhost:8080", "Gateway base URL")
	flag.StringVar(&senders, "senders", "trendyol", "Comma-separated senders to impersonate")
	flag.StringVar(&events, "events", "order.created,inventory.updated,price.updated", "Comma-separated canonical event types")
	flag.IntVar(&count, "count", 10, "Number of deliveries to send")
	flag.Float64Var(&qps, "qps", 5, "Deliveries per second (0 = unlimited)")
	flag.IntVar(&burst, "burst", 1, "Rate limiter burst size")
	flag.Uint64Var(&seed, "seed", 0, "Faker seed (0 = random)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "15:04:05.000",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	targets, err := parseSenders(senders)
	if err != nil {
		log.Fatal("Invalid -senders", zap.Error(err))
	}
	kinds := parseEvents(events)
	if len(kinds) == 0 {
		log.Fatal("At least one event type is required")
	}

	secrets := make(map[webhook.Sender]string, len(targets))
	for _, s := range targets {
		secret := cfg.Senders[s].Secret
		if secret == "" {
			log.Warn("No secret configured, deliveries will be unsigned", zap.String("sender", s.String()))
		}
		secrets[s] = secret
	}

	client, err := relay.NewClient(relay.Config{
		BaseURL: target,
		Secrets: secrets,
		QPS:     qps,
		Burst:   burst,
	}, log)
	if err != nil {
		log.Fatal("Failed to create client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := relay.NewGenerator(seed)
	log.Info("Relay started",
		zap.String("target", target),
		zap.Int("count", count),
		zap.Float64("qps", qps),
	)

	sum, err := client.Run(ctx, count, func(i int) (relay.Delivery, error) {
		sender := targets[i%len(targets)]
		kind := kinds[(i/len(targets))%len(kinds)]
		body, err := gen.Payload(sender, kind)
		if err != nil {
			return relay.Delivery{}, err
		}
		return relay.Delivery{Sender: sender, EventType: kind, Body: body}, nil
	})
	if err != nil {
		log.Warn("Relay stopped early", zap.Error(err))
	}

	codes := make([]int, 0, len(sum.ByStatus))
	for code := range sum.ByStatus {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		log.Info("Responses", zap.Int("status", code), zap.Int("count", sum.ByStatus[code]))
	}
	log.Info("Relay finished",
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.Elapsed),
	)
	if sum.Failed > 0 || err != nil {
		os.Exit(1)
	}
}

func parseSenders(v string) ([]webhook.Sender, error) {
	var out []webhook.Sender
	for _, part := range strings.Split(v, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := webhook.ParseSender(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no senders given, supported: %v", relay.SupportedSenders())
	}
	return out, nil
}

func parseEvents(v string) []webhook.EventType {
	var out []webhook.EventType
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, webhook.EventType(p))
		}
	}
	return out
}
