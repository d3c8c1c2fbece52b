package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/recurring-billing/internal/config"
	"github.com/akylbek/payment-system/recurring-billing/internal/metrics"
	"github.com/akylbek/payment-system/recurring-billing/internal/models"
	"github.com/akylbek/payment-system/recurring-billing/internal/telemetry"
)

var (
	ErrTransport         = errors.New("gateway transport error")
	ErrBusy              = errors.New("gateway busy")
	ErrTransientDecline  = errors.New("gateway transient decline")
	ErrMalformedResponse = errors.New("malformed gateway response")
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
	sleep      Sleeper
}

func NewClient(cfg config.GatewayConfig, httpClient *http.Client, sleep Sleeper) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if sleep == nil {
		sleep = ContextSleep
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		sleep:      sleep,
	}
}

// Charge submits req and follows the gateway's retry protocol until a final
// response arrives. A decline is returned as a response, not an error.
func (c *Client) Charge(ctx context.Context, req *models.TransactionRequest) (*models.TransactionResponse, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "gateway.Charge")
	defer span.End()

	resp, err := c.submitWithRetry(ctx, Encode(req))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if resp != nil {
		span.SetAttributes(
			attribute.Int("gateway.response_code", resp.ResponseCode),
			attribute.Int("gateway.reason_code", resp.ReasonCode),
		)
	}
	return resp, err
}

func (c *Client) submitWithRetry(ctx context.Context, body string) (*models.TransactionResponse, error) {
	transient := 0
	for {
		raw, err := c.post(ctx, body)
		if err != nil {
			return nil, err
		}

		resp, err := ParseResponse(raw, c.cfg.Delimiter)
		if err != nil {
			metrics.GatewayRequests.WithLabelValues("malformed").Inc()
			telemetry.Logger.Error("Unparseable gateway response", zap.Error(err))
			return nil, err
		}

		telemetry.Logger.Debug("Gateway response",
			zap.Int("response_code", resp.ResponseCode),
			zap.Int("reason_code", resp.ReasonCode),
			zap.String("reason_text", resp.ReasonText),
			zap.String("transaction_id", resp.TransactionID),
		)

		var delay time.Duration
		switch {
		case RetryAfterFiveMinutes(resp.ReasonCode):
			delay = c.cfg.TransientDelay
		case RetryImmediately(resp.ReasonCode):
			delay = 0
		default:
			return resp, nil
		}

		transient++
		if c.cfg.MaxTransientRetry > 0 && transient > c.cfg.MaxTransientRetry {
			telemetry.Logger.Warn("Gateway transient retry budget exhausted",
				zap.Int("retries", c.cfg.MaxTransientRetry),
				zap.Int("reason_code", resp.ReasonCode),
			)
			return resp, fmt.Errorf("%w: reason code %d after %d retries", ErrTransientDecline, resp.ReasonCode, c.cfg.MaxTransientRetry)
		}

		metrics.GatewayRetries.WithLabelValues("transient").Inc()
		telemetry.Logger.Info("Gateway asked for resubmission",
			zap.Int("reason_code", resp.ReasonCode),
			zap.Duration("delay", delay),
			zap.Int("retry", transient),
		)
		if delay > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
}

// post issues one HTTP submission, repeating it while the gateway answers 503.
func (c *Client) post(ctx context.Context, body string) (string, error) {
	busy := 0
	for {
		start := time.Now()
		status, payload, err := c.do(ctx, body)
		metrics.GatewayLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.GatewayRequests.WithLabelValues("transport_error").Inc()
			telemetry.Logger.Error("Payment gateway session failed", zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrTransport, err)
		}

		if status == http.StatusServiceUnavailable {
			metrics.GatewayRequests.WithLabelValues("busy").Inc()
			busy++
			if c.cfg.MaxBusyRetries > 0 && busy > c.cfg.MaxBusyRetries {
				return "", fmt.Errorf("%w: still unavailable after %d retries", ErrBusy, c.cfg.MaxBusyRetries)
			}
			metrics.GatewayRetries.WithLabelValues("busy").Inc()
			telemetry.Logger.Info("Gateway busy, sleeping before retry",
				zap.Duration("delay", c.cfg.BusyDelay),
				zap.Int("retry", busy),
			)
			if err := c.sleep(ctx, c.cfg.BusyDelay); err != nil {
				return "", err
			}
			continue
		}

		if status < 200 || status > 299 {
			metrics.GatewayRequests.WithLabelValues("http_error").Inc()
			telemetry.Logger.Error("Payment gateway returned unexpected status", zap.Int("status", status))
			return "", fmt.Errorf("%w: unexpected HTTP status %d", ErrTransport, status)
		}

		metrics.GatewayRequests.WithLabelValues("ok").Inc()
		return payload, nil
	}
}

func (c *Client) do(ctx context.Context, body string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, string(payload), nil
}
