package models

import (
	"time"

	"goflare.io/storecredit/models/enum"
)

// WebhookEvent records a platform delivery id so redeliveries can be dropped.
type WebhookEvent struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Topic     enum.Topic `json:"topic"`
	Processed bool       `json:"processed"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
