package domain

import (
	"time"
)

type WebhookPayload struct {
	Payload    Event     `json:"payload"`
	Origin     string    `json:"origin"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
