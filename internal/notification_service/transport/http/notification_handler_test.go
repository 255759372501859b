package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// --- Mocks ---

type MockDispatchService struct {
	mock.Mock
}

func (m *MockDispatchService) Dispatch(ctx context.Context, msg domain.Message, destinations map[domain.ChannelKind][]string, preferred domain.ChannelKind) (*domain.DispatchResult, error) {
	args := m.Called(ctx, msg, destinations, preferred)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DispatchResult), args.Error(1)
}

func (m *MockDispatchService) DispatchBulk(ctx context.Context, msg domain.Message, emails, phones, chatIDs []string, preferred domain.ChannelKind) *domain.BulkResult {
	args := m.Called(ctx, msg, emails, phones, chatIDs, preferred)
	return args.Get(0).(*domain.BulkResult)
}

type MockAttemptRepo struct {
	mock.Mock
}

func (m *MockAttemptRepo) Create(ctx context.Context, rec *domain.AttemptRecord) (*domain.AttemptRecord, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AttemptRecord), args.Error(1)
}

func (m *MockAttemptRepo) List(ctx context.Context, filter domain.AttemptFilter) ([]*domain.AttemptRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AttemptRecord), args.Error(1)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func (m *MockBroker) Subscribe(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) (*nats.Subscription, error) {
	args := m.Called(ctx, subject, queueGroup, handler)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*nats.Subscription), args.Error(1)
}

func (m *MockBroker) Close() {
	m.Called()
}

// --- Test Setup ---

type handlerTestComponents struct {
	router         *chi.Mux
	mockDispatcher *MockDispatchService
	mockAttempts   *MockAttemptRepo
	mockBroker     *MockBroker
}

func setupHandlerTest() handlerTestComponents {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockDispatcher := new(MockDispatchService)
	mockAttempts := new(MockAttemptRepo)
	mockBroker := new(MockBroker)

	handler := NewNotificationHandler(mockDispatcher, mockAttempts, mockBroker, validator.New(), logger)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	return handlerTestComponents{
		router:         router,
		mockDispatcher: mockDispatcher,
		mockAttempts:   mockAttempts,
		mockBroker:     mockBroker,
	}
}

func performRequest(t *testing.T, router *chi.Mux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestNotificationHandler_Send(t *testing.T) {
	t.Run("Delivered", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockDispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Message"),
			map[domain.ChannelKind][]string{domain.ChannelEmail: {"ops@example.com"}}, domain.ChannelKind("")).
			Return(&domain.DispatchResult{Delivered: true, Channel: domain.ChannelEmail}, nil).Once()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send", map[string]string{
			"title":   "Alert",
			"message": "disk almost full",
			"email":   "ops@example.com",
		})

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp SendNotificationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "sent", resp.Status)
		assert.Equal(t, "email", resp.Type)
		comps.mockDispatcher.AssertExpectations(t)
	})

	t.Run("PhoneNormalizedBeforeDispatch", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockDispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("domain.Message"),
			map[domain.ChannelKind][]string{domain.ChannelSMS: {"+79161234567"}}, domain.ChannelKind("")).
			Return(&domain.DispatchResult{Delivered: true, Channel: domain.ChannelSMS}, nil).Once()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send", map[string]string{
			"title":   "Alert",
			"message": "body",
			"phone":   "89161234567",
		})

		assert.Equal(t, http.StatusOK, rr.Code)
		comps.mockDispatcher.AssertExpectations(t)
	})

	t.Run("AllChannelsFailed", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockDispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&domain.DispatchResult{Delivered: false, FinalError: "smtp refused"}, nil).Once()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send", map[string]string{
			"title":   "Alert",
			"message": "body",
			"email":   "ops@example.com",
		})

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		var resp SendNotificationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "failed", resp.Status)
		assert.Equal(t, "smtp refused", resp.Message)
	})

	t.Run("NoDestinations", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockDispatcher.On("Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&domain.DispatchResult{FinalError: domain.ErrNoDestinations.Error()}, domain.ErrNoDestinations).Once()

		// Phone alone satisfies the contact presence rule but can still be
		// rejected by the engine if the channel has no adapter candidates.
		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send", map[string]string{
			"title":   "Alert",
			"message": "body",
			"phone":   "89161234567",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("MissingAllContacts", func(t *testing.T) {
		comps := setupHandlerTest()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send", map[string]string{
			"title":   "Alert",
			"message": "body",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		comps.mockDispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("MissingTitle", func(t *testing.T) {
		comps := setupHandlerTest()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send", map[string]string{
			"message": "body",
			"email":   "ops@example.com",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		comps.mockDispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		comps := setupHandlerTest()

		req := httptest.NewRequest(http.MethodPost, "/notifications/send", bytes.NewBufferString("{broken"))
		rr := httptest.NewRecorder()
		comps.router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestNotificationHandler_SendAsync(t *testing.T) {
	t.Run("Queued", func(t *testing.T) {
		comps := setupHandlerTest()

		var published []byte
		comps.mockBroker.On("Publish", mock.Anything, "notifications.dispatch.jobs", mock.AnythingOfType("[]uint8")).
			Run(func(args mock.Arguments) {
				published = args.Get(2).([]byte)
			}).Return(nil).Once()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send/async", map[string]string{
			"title":             "Alert",
			"message":           "body",
			"telegram_chat_id":  "1001",
			"preferred_channel": "telegram",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		var resp SendNotificationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "queued", resp.Status)

		var job domain.DispatchJob
		require.NoError(t, json.Unmarshal(published, &job))
		assert.Equal(t, resp.Message, job.ID.String(), "the response message is the job ID")
		assert.Equal(t, []string{"1001"}, job.TelegramChatIDs)
		assert.Equal(t, domain.ChannelTelegram, job.PreferredChannel)
		assert.Equal(t, 0, job.Attempt)
		comps.mockBroker.AssertExpectations(t)
	})

	t.Run("BrokerDown", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockBroker.On("Publish", mock.Anything, mock.Anything, mock.Anything).
			Return(nats.ErrConnectionClosed).Once()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send/async", map[string]string{
			"title":   "Alert",
			"message": "body",
			"email":   "ops@example.com",
		})

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestNotificationHandler_SendBulk(t *testing.T) {
	t.Run("Aggregated", func(t *testing.T) {
		comps := setupHandlerTest()
		bulkResult := &domain.BulkResult{
			TotalRecipients: 2,
			Successful:      1,
			Failed:          1,
			Details: []domain.BulkDetail{
				{Contact: "ops@example.com", Channel: domain.ChannelEmail, Success: true, Message: "sent"},
				{Contact: "+79161234567", Channel: domain.ChannelSMS, Success: false, Message: "provider rejected"},
			},
		}
		comps.mockDispatcher.On("DispatchBulk", mock.Anything, mock.AnythingOfType("domain.Message"),
			[]string{"ops@example.com"}, []string{"89161234567"}, []string(nil), domain.ChannelKind("")).
			Return(bulkResult).Once()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send-bulk", map[string]any{
			"title":   "Alert",
			"message": "body",
			"emails":  []string{"ops@example.com"},
			"phones":  []string{"89161234567"},
		})

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp SendBulkResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.TotalRecipients)
		assert.Equal(t, 1, resp.Successful)
		assert.Equal(t, 1, resp.Failed)
		require.Len(t, resp.Details, 2)
		assert.Equal(t, "provider rejected", resp.Details[1].Message)
		comps.mockDispatcher.AssertExpectations(t)
	})

	t.Run("AllListsEmpty", func(t *testing.T) {
		comps := setupHandlerTest()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send-bulk", map[string]any{
			"title":   "Alert",
			"message": "body",
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		comps.mockDispatcher.AssertNotCalled(t, "DispatchBulk",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("InvalidEmailInList", func(t *testing.T) {
		comps := setupHandlerTest()

		rr := performRequest(t, comps.router, http.MethodPost, "/notifications/send-bulk", map[string]any{
			"title":   "Alert",
			"message": "body",
			"emails":  []string{"not-an-email"},
		})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestNotificationHandler_ListAttempts(t *testing.T) {
	t.Run("Unfiltered", func(t *testing.T) {
		comps := setupHandlerTest()
		now := time.Now().UTC()
		records := []*domain.AttemptRecord{
			{
				ID:        uuid.New(),
				Title:     "Alert",
				Channel:   domain.ChannelTelegram,
				Address:   "1001",
				Status:    domain.AttemptStatusSent,
				CreatedAt: now,
			},
		}
		comps.mockAttempts.On("List", mock.Anything, domain.AttemptFilter{}).Return(records, nil).Once()

		rr := performRequest(t, comps.router, http.MethodGet, "/notifications/attempts", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp []AttemptResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "telegram", resp[0].Channel)
		assert.Equal(t, now.Format(time.RFC3339), resp[0].CreatedAt)
	})

	t.Run("FilteredByChannelAndStatus", func(t *testing.T) {
		comps := setupHandlerTest()
		ch := domain.ChannelSMS
		st := domain.AttemptStatusFailed
		comps.mockAttempts.On("List", mock.Anything, domain.AttemptFilter{Channel: &ch, Status: &st}).
			Return([]*domain.AttemptRecord{}, nil).Once()

		rr := performRequest(t, comps.router, http.MethodGet, "/notifications/attempts?channel=sms&status=failed", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		comps.mockAttempts.AssertExpectations(t)
	})

	t.Run("LimitApplied", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockAttempts.On("List", mock.Anything, domain.AttemptFilter{Limit: 5}).
			Return([]*domain.AttemptRecord{}, nil).Once()

		rr := performRequest(t, comps.router, http.MethodGet, "/notifications/attempts?limit=5", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		comps.mockAttempts.AssertExpectations(t)
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		comps := setupHandlerTest()

		rr := performRequest(t, comps.router, http.MethodGet, "/notifications/attempts?limit=zero", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		comps.mockAttempts.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("UnknownChannelFilter", func(t *testing.T) {
		comps := setupHandlerTest()

		rr := performRequest(t, comps.router, http.MethodGet, "/notifications/attempts?channel=pigeon", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		comps.mockAttempts.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})

	t.Run("RepositoryError", func(t *testing.T) {
		comps := setupHandlerTest()
		comps.mockAttempts.On("List", mock.Anything, mock.Anything).
			Return(nil, assert.AnError).Once()

		rr := performRequest(t, comps.router, http.MethodGet, "/notifications/attempts", nil)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
