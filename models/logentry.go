package models

import "time"

// Log levels and the categories the pipeline emits under. Categories are
// free-form tags; these are the ones this codebase uses.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	LogCategoryScript = "script"
	LogCategoryTTS    = "tts"
	LogCategoryImage  = "image"
	LogCategoryRender = "render"
	LogCategoryAPI    = "api"
	LogCategorySystem = "system"
)

type LogEntry struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Level    string `gorm:"type:varchar(16)" json:"level"`
	Category string `gorm:"type:varchar(32)" json:"category"`
	Message  string `json:"message"`
	Details  string `gorm:"type:json" json:"details,omitempty"`
	// ProjectID is a weak reference: cleared, not cascaded, when the project
	// is deleted.
	ProjectID string    `gorm:"type:varchar(64)" json:"projectId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (LogEntry) TableName() string {
	return "log_entry"
}
