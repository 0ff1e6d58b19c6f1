package model

import "time"

// View is the top-level screen the client should present.
type View string

const (
	ViewSetup View = "setup"
	ViewChats View = "chats"
)

// AlertLevel classifies user-facing alerts.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertSuccess AlertLevel = "success"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
)

// Alert is an in-app transient (or persistent) message to the user.
type Alert struct {
	ID         string     `json:"id"`
	Level      AlertLevel `json:"level"`
	Text       string     `json:"text"`
	Key        string     `json:"key,omitempty"`
	Persistent bool       `json:"persistent,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at,omitzero"`
}

// Live reports whether the alert is still visible at now.
func (a Alert) Live(now time.Time) bool {
	return a.Persistent || now.Before(a.ExpiresAt)
}

// JobStatus is the lifecycle of a bulk fetch.
type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// JobHandle describes the tracked bulk fetch.
type JobHandle struct {
	Status     JobStatus `json:"status"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Detail     string    `json:"detail,omitempty"`
}
