package model

import "time"

// Level is the severity of a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error" // Rendered as a destructive toast
)

// Notice is a dismissible, non-blocking message for the user.
// Notices never change graph state.
type Notice struct {
	ID          string    `json:"id"`
	Level       Level     `json:"level"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	NodeID      NodeID    `json:"nodeId,omitempty"`
	Time        time.Time `json:"time"`
}

// ErrorNotice builds an error-level notice.
func ErrorNotice(title, description string) Notice {
	return Notice{Level: LevelError, Title: title, Description: description}
}

// InfoNotice builds an info-level notice.
func InfoNotice(title, description string) Notice {
	return Notice{Level: LevelInfo, Title: title, Description: description}
}
