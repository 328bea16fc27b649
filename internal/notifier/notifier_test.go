package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/notifier"
	"github.com/wtsdeal/broadcast-service/internal/sender"
)

type clientStub struct {
	calls    int
	lastURL  string
	lastBody []byte
	status   int
	err      error
}

func (c *clientStub) Do(req *http.Request) (*http.Response, error) {
	c.calls++
	c.lastURL = req.URL.String()
	if req.Body != nil {
		c.lastBody, _ = io.ReadAll(req.Body)
	}
	if c.err != nil {
		return nil, c.err
	}
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}, nil
}

func outcomes(sent, failed int) []sender.Outcome {
	var out []sender.Outcome
	for i := 0; i < sent; i++ {
		out = append(out, sender.Outcome{Recipient: "s", Status: sender.StatusSuccess})
	}
	for i := 0; i < failed; i++ {
		out = append(out, sender.Outcome{Recipient: "f", Status: sender.StatusFailed, Code: 400})
	}
	return out
}

func TestNotifySendsCompletionEnvelope(t *testing.T) {
	client := &clientStub{}
	n, err := notifier.New("https://example.com/notify_user/", zerolog.Nop(), notifier.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.Notify(context.Background(), outcomes(3, 2), "uid-1", "rep-1")

	if client.calls != 1 {
		t.Fatalf("expected exactly one webhook call, got %d", client.calls)
	}
	if client.lastURL != "https://example.com/notify_user/" {
		t.Fatalf("webhook URL = %q", client.lastURL)
	}

	var env notifier.Envelope
	if err := json.Unmarshal(client.lastBody, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Status != "completed" || env.UniqueID != "uid-1" || env.ReportID != "rep-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Total != 5 || env.Sent != 3 || env.Failed != 2 {
		t.Fatalf("unexpected counts: %+v", env)
	}
}

func TestNotifyOmitsPerRecipientDetail(t *testing.T) {
	client := &clientStub{}
	n, err := notifier.New("https://example.com/hook", zerolog.Nop(), notifier.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.Notify(context.Background(), outcomes(1, 1), "uid-2", "rep-2")

	var raw map[string]any
	if err := json.Unmarshal(client.lastBody, &raw); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	for _, key := range []string{"results", "outcomes", "recipients"} {
		if _, ok := raw[key]; ok {
			t.Fatalf("payload must not carry per-recipient detail, found %q", key)
		}
	}
}

func TestNotifySwallowsTransportFault(t *testing.T) {
	client := &clientStub{err: errors.New("dial timeout")}
	n, err := notifier.New("https://example.com/hook", zerolog.Nop(), notifier.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Must not panic and must not retry.
	n.Notify(context.Background(), outcomes(1, 0), "uid-3", "rep-3")
	if client.calls != 1 {
		t.Fatalf("expected one attempt, got %d", client.calls)
	}
}

func TestNotifySwallowsWebhookRejection(t *testing.T) {
	client := &clientStub{status: http.StatusInternalServerError}
	n, err := notifier.New("https://example.com/hook", zerolog.Nop(), notifier.WithHTTPClient(client))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n.Notify(context.Background(), outcomes(0, 1), "uid-4", "rep-4")
	if client.calls != 1 {
		t.Fatalf("expected one attempt, got %d", client.calls)
	}
}

func TestNewRequiresWebhookURL(t *testing.T) {
	if _, err := notifier.New("  ", zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty webhook URL")
	}
}
