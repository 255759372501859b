package http

// SendNotificationRequest is the body of POST /notifications/send. At least
// one contact field must be supplied.
type SendNotificationRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	Message          string `json:"message" validate:"required"`
	Email            string `json:"email,omitempty" validate:"required_without_all=Phone TelegramChatID,omitempty,email"`
	Phone            string `json:"phone,omitempty" validate:"omitempty,max=20"`
	TelegramChatID   string `json:"telegram_chat_id,omitempty" validate:"omitempty,max=100"`
	PreferredChannel string `json:"preferred_channel,omitempty" validate:"omitempty,oneof=email sms telegram"`
}

// SendNotificationResponse reports a single-recipient send.
type SendNotificationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// SendBulkRequest is the body of POST /notifications/send-bulk. At least one
// list must be non-empty.
type SendBulkRequest struct {
	Title            string   `json:"title" validate:"required,max=200"`
	Message          string   `json:"message" validate:"required"`
	Emails           []string `json:"emails,omitempty" validate:"omitempty,dive,email"`
	Phones           []string `json:"phones,omitempty"`
	TelegramChatIDs  []string `json:"telegram_chat_ids,omitempty"`
	PreferredChannel string   `json:"preferred_channel,omitempty" validate:"omitempty,oneof=email sms telegram"`
}

// BulkDetailResponse is the per-destination outcome in a bulk response.
type BulkDetailResponse struct {
	Contact string `json:"contact"`
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SendBulkResponse aggregates a bulk send.
type SendBulkResponse struct {
	TotalRecipients int                  `json:"total_recipients"`
	Successful      int                  `json:"successful"`
	Failed          int                  `json:"failed"`
	Details         []BulkDetailResponse `json:"details"`
}

// AttemptResponse is one entry of GET /notifications/attempts.
type AttemptResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Channel      string `json:"channel"`
	Address      string `json:"address"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// GenericErrorResponse for API errors.
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
