package domain

import (
	"encoding/json"
	"time"
)

// Record is a single key-value entry held by the sandbox backend.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}
