package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cutline/internal/config"
)

const userAgent = "cutline/0.1.0"

// NewService builds the configured HTTP sinks plus any extra in-process
// services such as a Hub. Unconfigured sinks are skipped.
func NewService(cfg *config.Config, extra ...Service) Service {
	if cfg == nil {
		return Fanout(extra...)
	}
	n := cfg.Notifications
	timeout := time.Duration(n.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	limiter := newLimiter(n.RatePerSecond, n.Burst)

	services := make([]Service, 0, 2+len(extra))
	if topic := strings.TrimSpace(n.NtfyTopic); topic != "" {
		services = append(services, &ntfyService{
			sender: sender{client: client, limiter: limiter, timeout: timeout},
			topic:  topic,
		})
	}
	if url := strings.TrimSpace(n.WebhookURL); url != "" {
		services = append(services, &webhookService{
			sender:   sender{client: client, limiter: limiter, timeout: timeout},
			url:      url,
			progress: n.Progress,
		})
	}
	services = append(services, extra...)
	return Fanout(services...)
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// sender performs one rate-limited HTTP attempt per event.
type sender struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func (s sender) do(ctx context.Context, req *http.Request) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.limiter.Wait(waitCtx); err != nil {
		return fmt.Errorf("notification rate limit: %w", err)
	}

	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint %s returned %s", req.URL.Host, resp.Status)
	}
	return nil
}
