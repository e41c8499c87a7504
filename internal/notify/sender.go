package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"hyperlocal/internal/domain"
	"hyperlocal/pkg/e"

	"github.com/Songmu/retry"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultPopTimeout = 5 * time.Second
	maxAttempts       = 3
)

type Source interface {
	BRPop(ctx context.Context, timeout time.Duration) (domain.WebhookPayload, error)
	Len(ctx context.Context) (int64, error)
}

type WebhookSender struct {
	logger   *slog.Logger
	url      string
	queue    Source
	http     *http.Client
	interval time.Duration
	popWait  time.Duration
	depth    prometheus.Gauge
}

func NewWebhookSender(logger *slog.Logger, url string, q Source) *WebhookSender {
	return &WebhookSender{
		logger:   logger,
		url:      url,
		queue:    q,
		http:     &http.Client{Timeout: 5 * time.Second},
		interval: time.Second,
		popWait:  defaultPopTimeout,
	}
}

// WithRetryInterval sets the pause between delivery attempts.
func (s *WebhookSender) WithRetryInterval(d time.Duration) *WebhookSender {
	s.interval = d
	return s
}

// WithDepthGauge reports the remaining queue length after every pop.
func (s *WebhookSender) WithDepthGauge(g prometheus.Gauge) *WebhookSender {
	s.depth = g
	return s
}

func (s *WebhookSender) Run(ctx context.Context) {
	s.logger.Info("webhook sender started", slog.String("url", s.url))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("webhook sender stopped", slog.String("reason", ctx.Err().Error()))
			return
		default:
		}

		payload, err := s.queue.BRPop(ctx, s.popWait)
		if err != nil {
			if errors.Is(err, e.ErrWebHookEmpty) || ctx.Err() != nil {
				continue
			}
			s.logger.Error("BRPop failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		s.recordDepth(ctx)

		if err := s.Send(ctx, payload); err != nil {
			s.logger.Warn("webhook dropped",
				slog.String("event", string(payload.Payload.Kind)),
				slog.Any("error", err),
			)
		}
	}
}

func (s *WebhookSender) recordDepth(ctx context.Context) {
	if s.depth == nil {
		return
	}
	n, err := s.queue.Len(ctx)
	if err != nil {
		s.logger.Debug("webhook queue length unavailable", slog.Any("error", err))
		return
	}
	s.depth.Set(float64(n))
}

// Send posts one payload, retrying transport errors and non-2xx answers.
func (s *WebhookSender) Send(ctx context.Context, p domain.WebhookPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	attempt := 0
	return retry.Retry(maxAttempts, s.interval, func() error {
		attempt++
		if ctx.Err() != nil {
			return nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.http.Do(req)
		if err != nil {
			s.logger.Warn("webhook failed", slog.Int("attempt", attempt), slog.String("reason", err.Error()))
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			s.logger.Warn("webhook failed", slog.Int("attempt", attempt), slog.String("reason", resp.Status))
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		return nil
	})
}
