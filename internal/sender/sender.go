package sender

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/payload"
	"github.com/wtsdeal/broadcast-service/internal/provider/graph"
)

// Outcome statuses. A failed outcome carries a provider HTTP status code or a
// client-error classification; an error outcome records an unexpected fault
// outside the normal send path.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Classification values attached to failed outcomes.
const (
	ClassHTTP   = "http_error"
	ClassClient = "client_error"
)

// Outcome is the per-recipient result record. Outcomes are immutable once
// produced; the dispatcher accumulates them without further mutation.
type Outcome struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	Code      int    `json:"code,omitempty"`
	Class     string `json:"class,omitempty"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Request describes one per-recipient send. The template, bot and carousel
// stanzas are mutually exclusive and selected by Kind.
type Request struct {
	Token         string
	PhoneNumberID string
	Kind          payload.Kind
	Template      payload.TemplateContext
	Bot           payload.BotContent
	MediaIDs      []string
	MessageText   string
	Recipient     string
	Variables     []string
}

// Transport is the subset of the Graph client the sender depends on.
type Transport interface {
	Send(ctx context.Context, token, phoneNumberID string, body any) (*graph.RawResponse, error)
}

// Sender converts a Request into a provider payload, performs exactly one
// HTTP call and normalizes the result into an Outcome. It never retries.
type Sender struct {
	client Transport
	logger zerolog.Logger
}

// New constructs a Sender.
func New(client Transport, logger zerolog.Logger) (*Sender, error) {
	if client == nil {
		return nil, errors.New("sender: transport dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Sender{client: client, logger: logger}, nil
}

// Send performs one attempt for one recipient. Failures of any shape are
// folded into the returned Outcome; Send itself never returns an error so a
// bad recipient cannot disturb its batch.
func (s *Sender) Send(ctx context.Context, req Request) Outcome {
	body, err := s.buildBody(req)
	if err != nil {
		s.logger.Error().
			Str("recipient", req.Recipient).
			Str("kind", string(req.Kind)).
			Err(err).
			Msg("sender: payload construction failed")
		return Outcome{
			Recipient: req.Recipient,
			Status:    StatusError,
			Error:     err.Error(),
		}
	}

	raw, err := s.client.Send(ctx, req.Token, req.PhoneNumberID, body)
	if err != nil {
		s.logger.Warn().
			Str("recipient", req.Recipient).
			Str("kind", string(req.Kind)).
			Err(err).
			Msg("sender: transport fault")
		return Outcome{
			Recipient: req.Recipient,
			Status:    StatusFailed,
			Class:     ClassClient,
			Error:     err.Error(),
		}
	}

	if raw.OK() {
		return Outcome{
			Recipient: req.Recipient,
			Status:    StatusSuccess,
			Code:      raw.Code,
			Response:  raw.Body,
		}
	}

	s.logger.Warn().
		Str("recipient", req.Recipient).
		Str("kind", string(req.Kind)).
		Int("status", raw.Code).
		Str("body", raw.Body).
		Msg("sender: provider rejected message")
	return Outcome{
		Recipient: req.Recipient,
		Status:    StatusFailed,
		Code:      raw.Code,
		Class:     ClassHTTP,
		Response:  raw.Body,
	}
}

func (s *Sender) buildBody(req Request) (*payload.Message, error) {
	switch req.Kind {
	case payload.KindTemplate:
		return payload.BuildTemplate(req.Recipient, req.Template, req.Variables)
	case payload.KindOTP:
		return payload.BuildOTP(req.Recipient, req.Template, req.Variables)
	case payload.KindFlow:
		return payload.BuildFlow(req.Recipient, req.Template)
	case payload.KindCarousel:
		return payload.BuildCarousel(req.Recipient, req.Template, req.MediaIDs)
	case payload.KindText:
		// Plain text serves both the bot text message and the number
		// validation probe; they share one wire shape.
		text := req.MessageText
		if text == "" {
			text = req.Bot.Body
		}
		return payload.BuildTextProbe(req.Recipient, text), nil
	case payload.KindImage,
		payload.KindDocument,
		payload.KindVideo,
		payload.KindLocation,
		payload.KindList,
		payload.KindReplyButton,
		payload.KindProduct,
		payload.KindProductList,
		payload.KindLocationRequest:
		return payload.BuildInteractive(req.Kind, req.Recipient, req.Bot)
	default:
		return nil, fmt.Errorf("sender: unsupported message kind %q", req.Kind)
	}
}
