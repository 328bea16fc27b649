package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/sender"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Envelope is the completion payload posted to the webhook. Per-recipient
// outcomes are reduced to aggregate counts; the detailed result list never
// leaves the process.
type Envelope struct {
	Status   string `json:"status"`
	UniqueID string `json:"unique_id"`
	ReportID string `json:"report_id"`
	Total    int    `json:"total"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
}

// Option customises the notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the HTTP client used for webhook calls.
func WithHTTPClient(client HTTPClient) Option {
	return func(n *Notifier) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// Notifier posts a single job-completion envelope to a fixed webhook URL.
// Delivery is best effort: failures are logged and dropped.
type Notifier struct {
	webhookURL string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New constructs a Notifier for the given webhook URL.
func New(webhookURL string, logger zerolog.Logger, opts ...Option) (*Notifier, error) {
	if strings.TrimSpace(webhookURL) == "" {
		return nil, errors.New("notifier: webhook URL is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	n := &Notifier{
		webhookURL: webhookURL,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n, nil
}

// Notify reports job completion. The full outcome list is accepted so the
// notifier owns the reduction to counts; callers pass results verbatim.
func (n *Notifier) Notify(ctx context.Context, results []sender.Outcome, uniqueID, reportID string) {
	envelope := Envelope{
		Status:   "completed",
		UniqueID: uniqueID,
		ReportID: reportID,
		Total:    len(results),
	}
	for _, res := range results {
		if res.Status == sender.StatusSuccess {
			envelope.Sent++
		} else {
			envelope.Failed++
		}
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		n.logger.Error().Str("unique_id", uniqueID).Err(err).Msg("notifier: marshal envelope")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		n.logger.Error().Str("unique_id", uniqueID).Err(err).Msg("notifier: new request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Error().Str("unique_id", uniqueID).Err(err).Msg("notifier: webhook call failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		n.logger.Error().
			Str("unique_id", uniqueID).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("notifier: webhook rejected completion notice")
		return
	}

	n.logger.Info().
		Str("unique_id", uniqueID).
		Str("report_id", reportID).
		Msg("notifier: completion delivered")
}
