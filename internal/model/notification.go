package model

import "time"

// Notification results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Notification reports an outcome to the operator.
// Events include lifecycle events plus "ingested", "duplicate",
// "auto-send", "persist", "restart" and "collector-disabled".
type Notification struct {
	Seq          int64     `json:"seq"`
	Timestamp    time.Time `json:"timestamp"`
	ActionItemID string    `json:"action_item_id,omitempty"`
	Component    string    `json:"component,omitempty"`
	Event        string    `json:"event"`
	Result       string    `json:"result"`
	Detail       string    `json:"detail,omitempty"`
}
