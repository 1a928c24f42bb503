package models

const (
	StatusActive    = "ACTIVE"
	StatusCancelled = "CANCELLED"
)

const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionCancelled = "cancelled"
)

const (
	// DefaultDraftTTL время жизни черновика бронирования в секундах
	DefaultDraftTTL = 24 * 60 * 60

	// LookupToleranceMinutes допуск при поиске брони по примерному времени
	LookupToleranceMinutes = 30

	// SuggestionWindowHours полуширина окна поиска альтернатив
	SuggestionWindowHours = 4

	// MaxSuggestionProbes предел запросов к календарю при подборе альтернатив
	MaxSuggestionProbes = 8

	// MaxSuggestions максимум предлагаемых слотов
	MaxSuggestions = 2

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// RateLimitRequests запросов на бота в окне
	RateLimitRequests = 120

	// RateLimitWindow окно ограничения частоты в секундах
	RateLimitWindow = 60
)
