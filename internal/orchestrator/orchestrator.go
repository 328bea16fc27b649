package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/accounts"
	"github.com/wtsdeal/broadcast-service/internal/dispatcher"
	"github.com/wtsdeal/broadcast-service/internal/kafka/publisher"
	"github.com/wtsdeal/broadcast-service/internal/payload"
	"github.com/wtsdeal/broadcast-service/internal/sender"
)

// Dispatcher runs one job to completion and returns per-recipient outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *dispatcher.Job) ([]sender.Outcome, error)
}

// Notifier reports aggregate completion to the external webhook.
type Notifier interface {
	Notify(ctx context.Context, results []sender.Outcome, uniqueID, reportID string)
}

// Accounts combines credential lookup with coin reservation. Both the remote
// client and the SQLite store satisfy it.
type Accounts interface {
	accounts.Lookup
	UpdateBalanceReport(ctx context.Context, report accounts.BalanceReport) (string, error)
}

// TemplateResolver looks up template metadata; used by carousel jobs to
// resolve the template language.
type TemplateResolver interface {
	TemplateByName(ctx context.Context, token, wabaID, name string) (map[string]any, error)
}

// Credentials identifies the calling account on every job.
type Credentials struct {
	UserID   string
	APIToken string
}

// TemplateJob is a template or OTP broadcast.
type TemplateJob struct {
	Credentials
	UniqueID     string
	Kind         payload.Kind // KindTemplate or KindOTP
	TemplateName string
	Language     string
	MediaType    payload.MediaType
	MediaID      string
	Contacts     []string
	Variables    []string
	CSVVariables [][]string
}

// FlowJob is a flow-triggering template broadcast.
type FlowJob struct {
	Credentials
	UniqueID     string
	TemplateName string
	FlowID       string
	Language     string
	Contacts     []string
}

// CarouselJob is a carousel template broadcast. The template language is
// resolved from provider metadata before dispatch.
type CarouselJob struct {
	Credentials
	UniqueID     string
	TemplateName string
	Contacts     []string
	MediaIDs     []string
}

// BotJob is an interactive ("bot") broadcast.
type BotJob struct {
	Credentials
	UniqueID string
	Kind     payload.Kind
	Content  payload.BotContent
	Contacts []string
}

// ValidationJob probes each number with a plain text message.
type ValidationJob struct {
	Credentials
	UniqueID    string
	MessageText string
	Contacts    []string
}

// Result is the aggregate handed back to the inbound surface once a job has
// run to completion.
type Result struct {
	UniqueID string
	ReportID string
	Outcomes []sender.Outcome
	Total    int
	Sent     int
	Failed   int
}

// Orchestrator drives the validate, dispatch, notify sequence shared by
// every message kind.
type Orchestrator struct {
	dispatcher Dispatcher
	notifier   Notifier
	accounts   Accounts
	templates  TemplateResolver
	events     *publisher.JobEventPublisher
	logger     zerolog.Logger
	now        func() time.Time
}

// Dependencies collects the orchestrator's collaborators. Events may be nil.
type Dependencies struct {
	Dispatcher Dispatcher
	Notifier   Notifier
	Accounts   Accounts
	Templates  TemplateResolver
	Events     *publisher.JobEventPublisher
	Logger     zerolog.Logger
	Now        func() time.Time
}

// New constructs an Orchestrator.
func New(deps Dependencies) (*Orchestrator, error) {
	if deps.Dispatcher == nil {
		return nil, errors.New("orchestrator: dispatcher dependency is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("orchestrator: notifier dependency is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("orchestrator: accounts dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Orchestrator{
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		accounts:   deps.Accounts,
		templates:  deps.Templates,
		events:     deps.Events,
		logger:     logger,
		now:        nowFunc,
	}, nil
}

// BroadcastTemplate runs a template or OTP broadcast.
func (o *Orchestrator) BroadcastTemplate(ctx context.Context, job TemplateJob) (*Result, error) {
	if job.Kind != payload.KindTemplate && job.Kind != payload.KindOTP {
		return nil, errors.New("orchestrator: template job kind must be template or otp")
	}

	contacts, perRecipient, err := flattenCSV(job.Contacts, job.CSVVariables)
	if err != nil {
		return nil, err
	}

	user, reportID, err := o.admit(ctx, job.Credentials, job.Kind, job.TemplateName, contacts)
	if err != nil {
		return nil, err
	}

	mediaType := job.MediaType
	if job.Kind == payload.KindOTP {
		// OTP templates always carry a text header.
		mediaType = payload.MediaTypeText
	}

	return o.run(ctx, job.UniqueID, reportID, &dispatcher.Job{
		Token:         user.AppToken,
		PhoneNumberID: user.PhoneNumberID,
		Kind:          job.Kind,
		Template: payload.TemplateContext{
			Name:      job.TemplateName,
			Language:  job.Language,
			MediaType: mediaType,
			MediaID:   job.MediaID,
		},
		Recipients:            contacts,
		SharedVariables:       job.Variables,
		PerRecipientVariables: perRecipient,
		UniqueID:              job.UniqueID,
		ReportID:              reportID,
	})
}

// BroadcastFlow runs a flow-template broadcast.
func (o *Orchestrator) BroadcastFlow(ctx context.Context, job FlowJob) (*Result, error) {
	user, reportID, err := o.admit(ctx, job.Credentials, payload.KindFlow, job.TemplateName, job.Contacts)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, job.UniqueID, reportID, &dispatcher.Job{
		Token:         user.AppToken,
		PhoneNumberID: user.PhoneNumberID,
		Kind:          payload.KindFlow,
		Template: payload.TemplateContext{
			Name:     job.TemplateName,
			Language: job.Language,
			FlowID:   job.FlowID,
		},
		Recipients: job.Contacts,
		UniqueID:   job.UniqueID,
		ReportID:   reportID,
	})
}

// BroadcastCarousel runs a carousel broadcast. The template language comes
// from the provider's template metadata.
func (o *Orchestrator) BroadcastCarousel(ctx context.Context, job CarouselJob) (*Result, error) {
	user, reportID, err := o.admit(ctx, job.Credentials, payload.KindCarousel, job.TemplateName, job.Contacts)
	if err != nil {
		return nil, err
	}

	language := "en_US"
	if o.templates != nil {
		tpl, err := o.templates.TemplateByName(ctx, user.AppToken, user.WABAID, job.TemplateName)
		if err != nil {
			o.logger.Warn().
				Str("unique_id", job.UniqueID).
				Str("template", job.TemplateName).
				Err(err).
				Msg("orchestrator: template lookup failed, using default language")
		} else if lang, ok := tpl["language"].(string); ok && lang != "" {
			language = lang
		}
	}

	return o.run(ctx, job.UniqueID, reportID, &dispatcher.Job{
		Token:         user.AppToken,
		PhoneNumberID: user.PhoneNumberID,
		Kind:          payload.KindCarousel,
		Template: payload.TemplateContext{
			Name:     job.TemplateName,
			Language: language,
		},
		MediaIDs:   job.MediaIDs,
		Recipients: job.Contacts,
		UniqueID:   job.UniqueID,
		ReportID:   reportID,
	})
}

// BroadcastBot runs an interactive broadcast.
func (o *Orchestrator) BroadcastBot(ctx context.Context, job BotJob) (*Result, error) {
	user, reportID, err := o.admit(ctx, job.Credentials, job.Kind, "", job.Contacts)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, job.UniqueID, reportID, &dispatcher.Job{
		Token:         user.AppToken,
		PhoneNumberID: user.PhoneNumberID,
		Kind:          job.Kind,
		Bot:           job.Content,
		Recipients:    job.Contacts,
		UniqueID:      job.UniqueID,
		ReportID:      reportID,
	})
}

// ValidateNumbers probes every contact with a plain text message.
func (o *Orchestrator) ValidateNumbers(ctx context.Context, job ValidationJob) (*Result, error) {
	user, reportID, err := o.admit(ctx, job.Credentials, payload.KindText, "", job.Contacts)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, job.UniqueID, reportID, &dispatcher.Job{
		Token:         user.AppToken,
		PhoneNumberID: user.PhoneNumberID,
		Kind:          payload.KindText,
		MessageText:   job.MessageText,
		Recipients:    job.Contacts,
		UniqueID:      job.UniqueID,
		ReportID:      reportID,
	})
}

// admit performs the pre-dispatch gate: credential lookup, coin validation
// and coin reservation. Any error here is a structured rejection; neither the
// dispatcher nor the notifier runs.
func (o *Orchestrator) admit(ctx context.Context, creds Credentials, kind payload.Kind, templateName string, contacts []string) (*accounts.UserData, string, error) {
	if len(contacts) == 0 {
		return nil, "", errors.New("orchestrator: at least one contact is required")
	}

	user, err := o.accounts.FetchUser(ctx, creds.UserID, creds.APIToken)
	if err != nil {
		return nil, "", err
	}

	required := len(contacts)
	if err := accounts.ValidateCoins(balanceFor(user, kind), required); err != nil {
		return nil, "", err
	}

	reportID, err := o.accounts.UpdateBalanceReport(ctx, accounts.BalanceReport{
		UserID:       creds.UserID,
		APIToken:     creds.APIToken,
		Coins:        required,
		PhoneNumbers: strings.Join(contacts, ","),
		AllContacts:  contacts,
		TemplateName: templateName,
		Category:     categoryFor(kind),
	})
	if err != nil {
		return nil, "", err
	}

	return user, reportID, nil
}

// run executes the dispatch/notify skeleton. Once dispatch has started the
// job always reaches completion notification; only pre-dispatch invariant
// violations surface as errors.
func (o *Orchestrator) run(ctx context.Context, uniqueID, reportID string, job *dispatcher.Job) (*Result, error) {
	if uniqueID == "" {
		uniqueID = uuid.NewString()
		job.UniqueID = uniqueID
	}

	o.publishEvent(ctx, publisher.JobEvent{
		Type:       publisher.EventJobAccepted,
		UniqueID:   uniqueID,
		ReportID:   reportID,
		Kind:       string(job.Kind),
		Recipients: len(job.Recipients),
		Timestamp:  o.now().UTC(),
	})

	outcomes, err := o.dispatcher.Dispatch(ctx, job)
	if err != nil {
		return nil, err
	}

	result := &Result{
		UniqueID: uniqueID,
		ReportID: reportID,
		Outcomes: outcomes,
		Total:    len(outcomes),
	}
	for _, out := range outcomes {
		if out.Status == sender.StatusSuccess {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	o.notifier.Notify(ctx, outcomes, uniqueID, reportID)

	o.publishEvent(ctx, publisher.JobEvent{
		Type:       publisher.EventJobCompleted,
		UniqueID:   uniqueID,
		ReportID:   reportID,
		Kind:       string(job.Kind),
		Recipients: result.Total,
		Sent:       result.Sent,
		Failed:     result.Failed,
		Timestamp:  o.now().UTC(),
	})

	o.logger.Info().
		Str("unique_id", uniqueID).
		Str("report_id", reportID).
		Int("total", result.Total).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("orchestrator: job completed")

	return result, nil
}

func (o *Orchestrator) publishEvent(ctx context.Context, event publisher.JobEvent) {
	if err := o.events.Publish(ctx, event); err != nil {
		o.logger.Error().
			Str("unique_id", event.UniqueID).
			Str("event", event.Type).
			Err(err).
			Msg("orchestrator: failed to publish job event")
	}
}

// flattenCSV converts the CSV-style variable block into a per-recipient
// override: the first column replaces the contact at the same index, the
// remainder become that recipient's variables. Rows must align with the
// contact list.
func flattenCSV(contacts []string, rows [][]string) ([]string, [][]string, error) {
	if rows == nil {
		return contacts, nil, nil
	}
	if len(rows) != len(contacts) {
		return nil, nil, errors.New("orchestrator: csv variable rows must align with the contact list")
	}

	out := make([]string, len(contacts))
	perRecipient := make([][]string, len(contacts))
	copy(out, contacts)
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(row[0]) != "" {
			out[i] = strings.TrimSpace(row[0])
		}
		perRecipient[i] = row[1:]
	}
	return out, perRecipient, nil
}

// balanceFor selects the coin pool consulted for a message kind: OTP jobs
// draw on authentication coins, template broadcasts on marketing coins,
// everything else on the general balance.
func balanceFor(user *accounts.UserData, kind payload.Kind) int {
	switch kind {
	case payload.KindOTP:
		return user.AuthenticationCoins
	case payload.KindTemplate, payload.KindFlow, payload.KindCarousel:
		return user.MarketingCoins
	default:
		return user.Coins
	}
}

// categoryFor labels the reservation for reporting purposes.
func categoryFor(kind payload.Kind) string {
	switch kind {
	case payload.KindOTP:
		return "authentication"
	case payload.KindTemplate, payload.KindFlow, payload.KindCarousel:
		return "marketing"
	default:
		return "utility"
	}
}
