package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/notifly/gateway/internal/platform/messagebroker"
	"github.com/notifly/gateway/internal/notification_service/app"
	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

// dispatchService is the dispatcher capability the handler depends on;
// satisfied by *app.Dispatcher and mocked in tests.
type dispatchService interface {
	Dispatch(ctx context.Context, msg domain.Message, destinations map[domain.ChannelKind][]string, preferred domain.ChannelKind) (*domain.DispatchResult, error)
	DispatchBulk(ctx context.Context, msg domain.Message, emails, phones, chatIDs []string, preferred domain.ChannelKind) *domain.BulkResult
}

// NotificationHandler exposes the send, bulk send and attempt log endpoints.
type NotificationHandler struct {
	dispatcher  dispatchService
	attemptRepo repository.AttemptLogRepository
	broker      messagebroker.Client
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(
	dispatcher dispatchService,
	attemptRepo repository.AttemptLogRepository,
	broker messagebroker.Client,
	validate *validator.Validate,
	logger *slog.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		dispatcher:  dispatcher,
		attemptRepo: attemptRepo,
		broker:      broker,
		validate:    validate,
		logger:      logger.With("handler", "notification"),
	}
}

// RegisterRoutes registers notification routes with the given router.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications/send", h.handleSend)
	r.Post("/notifications/send/async", h.handleSendAsync)
	r.Post("/notifications/send-bulk", h.handleSendBulk)
	r.Get("/notifications/attempts", h.handleListAttempts)
}

func (h *NotificationHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	req, ok := h.decodeSendRequest(w, r, logger)
	if !ok {
		return
	}

	msg := domain.NewMessage(req.Title, req.Message)
	result, err := h.dispatcher.Dispatch(ctx, msg, destinationsFromRequest(req), domain.ChannelKind(req.PreferredChannel))
	if err != nil {
		if errors.Is(err, domain.ErrNoDestinations) {
			h.jsonError(w, logger, "No destination configured", http.StatusBadRequest)
			return
		}
		logger.ErrorContext(ctx, "Dispatch failed", "error", err)
		h.jsonError(w, logger, "Failed to send notification", http.StatusInternalServerError)
		return
	}

	if !result.Delivered {
		logger.WarnContext(ctx, "All channels failed", "final_error", result.FinalError, "attempts", len(result.Attempts))
		h.writeJSON(w, http.StatusBadGateway, SendNotificationResponse{
			Status:  "failed",
			Message: result.FinalError,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, SendNotificationResponse{
		Status:  "sent",
		Message: "notification sent",
		Type:    string(result.Channel),
	})
}

func (h *NotificationHandler) handleSendAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	req, ok := h.decodeSendRequest(w, r, logger)
	if !ok {
		return
	}

	job := domain.DispatchJob{
		ID:               uuid.New(),
		Title:            req.Title,
		Message:          req.Message,
		PreferredChannel: domain.ChannelKind(req.PreferredChannel),
	}
	if req.Email != "" {
		job.Emails = []string{req.Email}
	}
	if req.Phone != "" {
		job.Phones = []string{domain.NormalizePhone(req.Phone)}
	}
	if req.TelegramChatID != "" {
		job.TelegramChatIDs = []string{req.TelegramChatID}
	}

	payload, err := json.Marshal(&job)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal dispatch job", "error", err)
		h.jsonError(w, logger, "Failed to queue notification", http.StatusInternalServerError)
		return
	}
	if err := h.broker.Publish(ctx, app.DispatchJobsSubject, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish dispatch job", "error", err, "job_id", job.ID)
		h.jsonError(w, logger, "Failed to queue notification", http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "Dispatch job queued", "job_id", job.ID)
	h.writeJSON(w, http.StatusAccepted, SendNotificationResponse{
		Status:  "queued",
		Message: job.ID.String(),
	})
}

func (h *NotificationHandler) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req SendBulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Emails)+len(req.Phones)+len(req.TelegramChatIDs) == 0 {
		h.jsonError(w, logger, "At least one recipient list must be non-empty", http.StatusBadRequest)
		return
	}

	msg := domain.NewMessage(req.Title, req.Message)
	result := h.dispatcher.DispatchBulk(ctx, msg, req.Emails, req.Phones, req.TelegramChatIDs, domain.ChannelKind(req.PreferredChannel))

	resp := SendBulkResponse{
		TotalRecipients: result.TotalRecipients,
		Successful:      result.Successful,
		Failed:          result.Failed,
		Details:         make([]BulkDetailResponse, 0, len(result.Details)),
	}
	for _, detail := range result.Details {
		resp.Details = append(resp.Details, BulkDetailResponse{
			Contact: detail.Contact,
			Channel: string(detail.Channel),
			Success: detail.Success,
			Message: detail.Message,
		})
	}

	logger.InfoContext(ctx, "Bulk dispatch finished",
		"total", result.TotalRecipients, "successful", result.Successful, "failed", result.Failed)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandler) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	filter := domain.AttemptFilter{}
	if raw := r.URL.Query().Get("channel"); raw != "" {
		kind := domain.ChannelKind(raw)
		if !kind.Valid() {
			h.jsonError(w, logger, "Unknown channel filter: "+raw, http.StatusBadRequest)
			return
		}
		filter.Channel = &kind
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.AttemptStatus(raw)
		if !status.Valid() {
			h.jsonError(w, logger, "Unknown status filter: "+raw, http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.jsonError(w, logger, "Invalid limit: "+raw, http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	records, err := h.attemptRepo.List(ctx, filter)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list attempt records", "error", err)
		h.jsonError(w, logger, "Failed to retrieve attempt log", http.StatusInternalServerError)
		return
	}

	resp := make([]AttemptResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, AttemptResponse{
			ID:           rec.ID.String(),
			Title:        rec.Title,
			Channel:      string(rec.Channel),
			Address:      rec.Address,
			Status:       string(rec.Status),
			ErrorMessage: rec.ErrorMessage,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// decodeSendRequest decodes and validates a single-recipient send body,
// normalizing the phone before it reaches the dispatcher.
func (h *NotificationHandler) decodeSendRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*SendNotificationRequest, bool) {
	var req SendNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, logger, "Invalid request payload: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		h.jsonError(w, logger, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if req.Phone != "" {
		req.Phone = domain.NormalizePhone(req.Phone)
	}
	return &req, true
}

func destinationsFromRequest(req *SendNotificationRequest) map[domain.ChannelKind][]string {
	destinations := map[domain.ChannelKind][]string{}
	if req.Email != "" {
		destinations[domain.ChannelEmail] = []string{req.Email}
	}
	if req.Phone != "" {
		destinations[domain.ChannelSMS] = []string{req.Phone}
	}
	if req.TelegramChatID != "" {
		destinations[domain.ChannelTelegram] = []string{req.TelegramChatID}
	}
	return destinations
}

func (h *NotificationHandler) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (h *NotificationHandler) jsonError(w http.ResponseWriter, logger *slog.Logger, message string, statusCode int) {
	logger.Warn("API error response", "status_code", statusCode, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(GenericErrorResponse{Error: message})
}
