package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/wtsdeal/broadcast-service/internal/accounts"
	"github.com/wtsdeal/broadcast-service/internal/models"
	"github.com/wtsdeal/broadcast-service/internal/orchestrator"
	"github.com/wtsdeal/broadcast-service/internal/payload"
)

const defaultBodyLimit = 1 << 20 // 1 MiB request bodies

var validate = validator.New()

// Uploader pushes media to the provider and returns the assigned id.
type Uploader interface {
	UploadMedia(ctx context.Context, token, phoneNumberID, filename, contentType string, file io.Reader) (string, error)
}

// Server is the inbound HTTP surface. Each route admits one job kind,
// runs it to completion through the orchestrator and answers with the
// aggregate envelope.
type Server struct {
	orch      *orchestrator.Orchestrator
	accounts  accounts.Lookup
	uploader  Uploader
	logger    zerolog.Logger
	bodyLimit int64
}

// Option adjusts optional Server behavior.
type Option func(*Server)

// WithBodyLimit caps the accepted request body size.
func WithBodyLimit(limit int64) Option {
	return func(s *Server) {
		if limit > 0 {
			s.bodyLimit = limit
		}
	}
}

// New constructs a Server around its collaborators.
func New(orch *orchestrator.Orchestrator, lookup accounts.Lookup, uploader Uploader, logger zerolog.Logger, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, errors.New("server: orchestrator dependency is required")
	}
	if lookup == nil {
		return nil, errors.New("server: accounts dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	s := &Server{
		orch:      orch,
		accounts:  lookup,
		uploader:  uploader,
		logger:    logger,
		bodyLimit: defaultBodyLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router assembles the chi route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Post("/send_messages", s.handleSendMessages)
	r.Post("/send_otp", s.handleSendOTP)
	r.Post("/send_flow_message", s.handleSendFlow)
	r.Post("/send_carousel", s.handleSendCarousel)
	r.Post("/send_bot_message", s.handleSendBot)
	r.Post("/validate_numbers", s.handleValidateNumbers)
	r.Post("/upload_media", s.handleUploadMedia)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, models.HealthResponse{Status: "ok", Service: "broadcast-service"})
}

func (s *Server) handleSendMessages(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessagesRequest
	if !s.decode(w, r, &req) {
		return
	}

	mediaType, err := payload.ParseMediaType(req.MediaType)
	if err != nil {
		s.reject(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	result, err := s.orch.BroadcastTemplate(r.Context(), orchestrator.TemplateJob{
		Credentials:  credentials(req.CredentialsFields),
		UniqueID:     req.UniqueID,
		Kind:         payload.KindTemplate,
		TemplateName: req.TemplateName,
		Language:     req.Language,
		MediaType:    mediaType,
		MediaID:      req.MediaID,
		Contacts:     req.Contacts,
		Variables:    req.Variables,
		CSVVariables: req.CSVVariables,
	})
	s.finish(w, "messages sent successfully", result, err)
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req models.SendOTPRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.orch.BroadcastTemplate(r.Context(), orchestrator.TemplateJob{
		Credentials:  credentials(req.CredentialsFields),
		UniqueID:     req.UniqueID,
		Kind:         payload.KindOTP,
		TemplateName: req.TemplateName,
		Language:     req.Language,
		Contacts:     req.Contacts,
		Variables:    req.Variables,
	})
	s.finish(w, "otp sent successfully", result, err)
}

func (s *Server) handleSendFlow(w http.ResponseWriter, r *http.Request) {
	var req models.SendFlowRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.orch.BroadcastFlow(r.Context(), orchestrator.FlowJob{
		Credentials:  credentials(req.CredentialsFields),
		UniqueID:     req.UniqueID,
		TemplateName: req.TemplateName,
		FlowID:       req.FlowID,
		Language:     req.Language,
		Contacts:     req.Contacts,
	})
	s.finish(w, "flow messages sent successfully", result, err)
}

func (s *Server) handleSendCarousel(w http.ResponseWriter, r *http.Request) {
	var req models.SendCarouselRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.orch.BroadcastCarousel(r.Context(), orchestrator.CarouselJob{
		Credentials:  credentials(req.CredentialsFields),
		UniqueID:     req.UniqueID,
		TemplateName: req.TemplateName,
		Contacts:     req.Contacts,
		MediaIDs:     req.MediaIDs,
	})
	s.finish(w, "carousel messages sent successfully", result, err)
}

func (s *Server) handleSendBot(w http.ResponseWriter, r *http.Request) {
	var req models.SendBotMessageRequest
	if !s.decode(w, r, &req) {
		return
	}

	kind, err := payload.ParseKind(req.MessageType)
	if err != nil {
		s.reject(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	content, err := botContent(req)
	if err != nil {
		s.reject(w, http.StatusUnprocessableEntity, err.Error(), nil)
		return
	}

	result, err := s.orch.BroadcastBot(r.Context(), orchestrator.BotJob{
		Credentials: credentials(req.CredentialsFields),
		UniqueID:    req.UniqueID,
		Kind:        kind,
		Content:     content,
		Contacts:    req.Contacts,
	})
	s.finish(w, "bot messages sent successfully", result, err)
}

func (s *Server) handleValidateNumbers(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateNumbersRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.orch.ValidateNumbers(r.Context(), orchestrator.ValidationJob{
		Credentials: credentials(req.CredentialsFields),
		UniqueID:    req.UniqueID,
		MessageText: req.MessageText,
		Contacts:    req.Contacts,
	})
	s.finish(w, "validation messages sent successfully", result, err)
}

// handleUploadMedia accepts a multipart form with user credentials and a
// single file part, relays the file to the provider and returns its media id.
func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		s.reject(w, http.StatusNotImplemented, "media upload is not configured", nil)
		return
	}

	if err := r.ParseMultipartForm(s.bodyLimit); err != nil {
		s.reject(w, http.StatusUnprocessableEntity, "invalid multipart form", err)
		return
	}

	userID := r.FormValue("user_id")
	apiToken := r.FormValue("api_token")
	if userID == "" || apiToken == "" {
		s.reject(w, http.StatusUnprocessableEntity, "user_id and api_token are required", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.reject(w, http.StatusUnprocessableEntity, "file part is required", err)
		return
	}
	defer file.Close()

	user, err := s.accounts.FetchUser(r.Context(), userID, apiToken)
	if err != nil {
		s.writeError(w, err)
		return
	}

	mediaID, err := s.uploader.UploadMedia(r.Context(), user.AppToken, user.PhoneNumberID,
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.reject(w, http.StatusBadGateway, "media upload failed", err)
		return
	}

	s.respond(w, http.StatusOK, models.UploadMediaResponse{Status: "success", MediaID: mediaID})
}

// decode reads, unmarshals and validates the request body. On failure it
// writes the error response and reports false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.bodyLimit))
	if err != nil {
		s.reject(w, http.StatusBadRequest, "failed to read request body", err)
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.reject(w, http.StatusBadRequest, "invalid json body", err)
		return false
	}
	if err := validate.Struct(out); err != nil {
		s.reject(w, http.StatusUnprocessableEntity, "request validation failed", err)
		return false
	}
	return true
}

// finish maps an orchestrator result or error into the response envelope.
func (s *Server) finish(w http.ResponseWriter, message string, result *orchestrator.Result, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, models.SuccessResponse{
		Status:   "success",
		Message:  message,
		UniqueID: result.UniqueID,
		ReportID: result.ReportID,
		Total:    result.Total,
		Sent:     result.Sent,
		Failed:   result.Failed,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if rej, ok := accounts.AsRejection(err); ok {
		s.reject(w, rej.StatusCode, rej.Detail, nil)
		return
	}
	s.reject(w, http.StatusInternalServerError, "internal server error", err)
}

func (s *Server) reject(w http.ResponseWriter, code int, detail string, err error) {
	resp := models.ErrorResponse{Status: "failed", Detail: detail}
	if err != nil {
		resp.Error = err.Error()
		s.logger.Error().Int("status", code).Err(err).Msg("server: request rejected")
	} else {
		s.logger.Warn().Int("status", code).Str("detail", detail).Msg("server: request rejected")
	}
	s.respond(w, code, resp)
}

func (s *Server) respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("server: failed to write response")
	}
}

func credentials(fields models.CredentialsFields) orchestrator.Credentials {
	return orchestrator.Credentials{UserID: fields.UserID, APIToken: fields.APIToken}
}

// botContent maps the request's interactive fields onto the payload layer.
func botContent(req models.SendBotMessageRequest) (payload.BotContent, error) {
	content := payload.BotContent{
		Header:    req.Header,
		Body:      req.Body,
		Footer:    req.Footer,
		CatalogID: req.CatalogID,
		ProductID: req.ProductID,
		MediaID:   req.MediaID,
	}

	for _, b := range req.Buttons {
		content.Buttons = append(content.Buttons, payload.ButtonReply{ID: b.ID, Title: b.Title})
	}
	for _, sec := range req.Sections {
		section := payload.Section{Title: sec.Title}
		for _, row := range sec.Rows {
			section.Rows = append(section.Rows, payload.SectionRow{
				ID:          row.ID,
				Title:       row.Title,
				Description: row.Description,
			})
		}
		for _, id := range sec.ProductIDs {
			section.ProductItems = append(section.ProductItems, payload.Product{ProductRetailerID: id})
		}
		content.Sections = append(content.Sections, section)
	}

	if req.Latitude != "" || req.Longitude != "" {
		lat, err := strconv.ParseFloat(req.Latitude, 64)
		if err != nil {
			return content, errors.New("server: latitude must be a decimal number")
		}
		lng, err := strconv.ParseFloat(req.Longitude, 64)
		if err != nil {
			return content, errors.New("server: longitude must be a decimal number")
		}
		content.Latitude = lat
		content.Longitude = lng
	}

	return content, nil
}

// ListenAndServe runs the HTTP server until ctx is canceled, then shuts it
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info().Str("addr", addr).Msg("server: listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
