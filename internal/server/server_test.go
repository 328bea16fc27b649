package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/accounts"
	"github.com/wtsdeal/broadcast-service/internal/dispatcher"
	"github.com/wtsdeal/broadcast-service/internal/models"
	"github.com/wtsdeal/broadcast-service/internal/orchestrator"
	"github.com/wtsdeal/broadcast-service/internal/sender"
	"github.com/wtsdeal/broadcast-service/internal/server"
)

type dispatcherStub struct {
	jobs []*dispatcher.Job
}

func (d *dispatcherStub) Dispatch(ctx context.Context, job *dispatcher.Job) ([]sender.Outcome, error) {
	d.jobs = append(d.jobs, job)
	outcomes := make([]sender.Outcome, len(job.Recipients))
	for i, r := range job.Recipients {
		outcomes[i] = sender.Outcome{Recipient: r, Status: sender.StatusSuccess, Code: 200}
	}
	return outcomes, nil
}

type notifierStub struct{ calls int }

func (n *notifierStub) Notify(ctx context.Context, results []sender.Outcome, uniqueID, reportID string) {
	n.calls++
}

type accountsStub struct {
	user *accounts.UserData
	err  error
}

func (a *accountsStub) FetchUser(ctx context.Context, userID, apiToken string) (*accounts.UserData, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.user, nil
}

func (a *accountsStub) UpdateBalanceReport(ctx context.Context, report accounts.BalanceReport) (string, error) {
	return "rep-1", nil
}

func newTestServer(t *testing.T, acct *accountsStub) (*server.Server, *dispatcherStub, *notifierStub) {
	t.Helper()
	disp := &dispatcherStub{}
	notif := &notifierStub{}
	orch, err := orchestrator.New(orchestrator.Dependencies{
		Dispatcher: disp,
		Notifier:   notif,
		Accounts:   acct,
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	srv, err := server.New(orch, acct, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv, disp, notif
}

func activeUser() *accounts.UserData {
	return &accounts.UserData{
		UserID:         "u-1",
		APIToken:       "tok",
		IsActive:       true,
		Coins:          100,
		MarketingCoins: 100,
		PhoneNumberID:  "pn-1",
		AppToken:       "app-tok",
	}
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t, &accountsStub{user: activeUser()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health models.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected health payload: %+v", health)
	}
}

func TestSendMessagesSuccessEnvelope(t *testing.T) {
	srv, disp, notif := newTestServer(t, &accountsStub{user: activeUser()})

	rec := postJSON(t, srv.Router(), "/send_messages", `{
		"user_id": "u-1",
		"api_token": "tok",
		"unique_id": "uid-1",
		"template_name": "promo",
		"language": "en_US",
		"media_type": "TEXT",
		"contacts": ["919000000001", "919000000002"]
	}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.SuccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "success" || resp.UniqueID != "uid-1" || resp.ReportID != "rep-1" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Total != 2 || resp.Sent != 2 {
		t.Fatalf("unexpected counts: %+v", resp)
	}
	if len(disp.jobs) != 1 || notif.calls != 1 {
		t.Fatalf("expected one dispatch and one notification, got %d/%d", len(disp.jobs), notif.calls)
	}
}

func TestSendMessagesValidationFailure(t *testing.T) {
	srv, disp, _ := newTestServer(t, &accountsStub{user: activeUser()})

	// Missing contacts and template_name.
	rec := postJSON(t, srv.Router(), "/send_messages", `{"user_id":"u-1","api_token":"tok"}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "failed" {
		t.Fatalf("unexpected error payload: %+v", resp)
	}
	if len(disp.jobs) != 0 {
		t.Fatal("invalid request must not dispatch")
	}
}

func TestSendMessagesMalformedJSON(t *testing.T) {
	srv, _, _ := newTestServer(t, &accountsStub{user: activeUser()})

	rec := postJSON(t, srv.Router(), "/send_messages", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRejectionStatusSurfaced(t *testing.T) {
	srv, disp, notif := newTestServer(t, &accountsStub{err: &accounts.Rejection{
		StatusCode: http.StatusForbidden,
		Detail:     "user account is not active; please contact support",
	}})

	rec := postJSON(t, srv.Router(), "/send_messages", `{
		"user_id": "u-1",
		"api_token": "tok",
		"template_name": "promo",
		"language": "en",
		"media_type": "TEXT",
		"contacts": ["919000000001"]
	}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(resp.Detail, "not active") {
		t.Fatalf("unexpected detail: %q", resp.Detail)
	}
	if len(disp.jobs) != 0 || notif.calls != 0 {
		t.Fatal("rejected job must not dispatch or notify")
	}
}

func TestSendOTPRequiresVariable(t *testing.T) {
	srv, _, _ := newTestServer(t, &accountsStub{user: activeUser()})

	rec := postJSON(t, srv.Router(), "/send_otp", `{
		"user_id": "u-1",
		"api_token": "tok",
		"template_name": "otp",
		"language": "en",
		"contacts": ["919000000001"]
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestSendBotMessageUnknownKind(t *testing.T) {
	srv, _, _ := newTestServer(t, &accountsStub{user: activeUser()})

	rec := postJSON(t, srv.Router(), "/send_bot_message", `{
		"user_id": "u-1",
		"api_token": "tok",
		"message_type": "postcard",
		"body": "hello",
		"contacts": ["919000000001"]
	}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestSendBotMessageList(t *testing.T) {
	srv, disp, _ := newTestServer(t, &accountsStub{user: activeUser()})

	rec := postJSON(t, srv.Router(), "/send_bot_message", `{
		"user_id": "u-1",
		"api_token": "tok",
		"message_type": "list_message",
		"header": "Menu",
		"body": "Pick one",
		"sections": [{"title": "Mains", "rows": [{"id": "r1", "title": "Dosa"}]}],
		"contacts": ["919000000001"]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(disp.jobs) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(disp.jobs))
	}
	if got := disp.jobs[0].Bot.Sections[0].Rows[0].Title; got != "Dosa" {
		t.Fatalf("section row lost in mapping: %q", got)
	}
}

func TestValidateNumbers(t *testing.T) {
	srv, disp, _ := newTestServer(t, &accountsStub{user: activeUser()})

	rec := postJSON(t, srv.Router(), "/validate_numbers", `{
		"user_id": "u-1",
		"api_token": "tok",
		"message_text": "ping",
		"contacts": ["919000000001", "919000000002", "919000000003"]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.SuccessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 3 {
		t.Fatalf("unexpected total: %+v", resp)
	}
	if disp.jobs[0].MessageText != "ping" {
		t.Fatalf("probe text lost: %+v", disp.jobs[0])
	}
}

func TestUploadMediaUnconfigured(t *testing.T) {
	srv, _, _ := newTestServer(t, &accountsStub{user: activeUser()})

	req := httptest.NewRequest(http.MethodPost, "/upload_media", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
