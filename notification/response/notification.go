package response

import "time"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Notification struct {
	CreatedAt time.Time `json:"createdAt"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	SessionID string    `json:"sessionId"`
}
