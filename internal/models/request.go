package models

type CreateRequest struct {
	BotID          string            `json:"-"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Phone          string            `json:"phone,omitempty"`
	Service        string            `json:"service,omitempty"`
	DateTime       string            `json:"datetime"`
	CustomFields   map[string]string `json:"custom_fields,omitempty"`
}

type UpdateRequest struct {
	BotID            string `json:"-"`
	ConversationID   string `json:"conversation_id,omitempty"`
	Email            string `json:"email"`
	OriginalDateTime string `json:"original_datetime"`
	NewDateTime      string `json:"new_datetime,omitempty"`
	Service          string `json:"service,omitempty"`
}

type CancelRequest struct {
	BotID          string `json:"-"`
	ConversationID string `json:"conversation_id,omitempty"`
	Email          string `json:"email"`
	DateTime       string `json:"datetime"`
	Reason         string `json:"reason,omitempty"`
}

// BookingResult is returned to the conversational caller for every operation.
type BookingResult struct {
	Success                bool     `json:"success"`
	Action                 string   `json:"action,omitempty"`
	BookingID              string   `json:"bookingId,omitempty"`
	Service                string   `json:"service,omitempty"`
	Start                  string   `json:"start,omitempty"`
	End                    string   `json:"end,omitempty"`
	AddToCalendarURL       string   `json:"addToCalendarUrl,omitempty"`
	ConfirmationEmailSent  *bool    `json:"confirmationEmailSent,omitempty"`
	ConfirmationEmailError string   `json:"confirmationEmailError,omitempty"`
	ErrorMessage           string   `json:"errorMessage,omitempty"`
	Reason                 string   `json:"reason,omitempty"`
	SuggestedSlots         []string `json:"suggestedSlots,omitempty"`
	SuggestedServices      []string `json:"suggestedServices,omitempty"`
}

// NotificationOutcome reports an email attempt. Failures never abort a booking.
type NotificationOutcome struct {
	Sent   bool   `json:"sent"`
	Reason string `json:"reason,omitempty"`
}

// Attachment is a file sent along with a notification.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}
