package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StoryReel-server/models"
	"StoryReel-server/store"

	"github.com/sirupsen/logrus"
)

// Emitter is the progress/log emission interface of the pipeline. Events go
// to the process logger and are mirrored into the persistence collaborator's
// log table so the UI can list them per project.
type Emitter struct {
	log   *logrus.Logger
	store store.Store
}

func NewEmitter(s store.Store) *Emitter {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	return &Emitter{log: l, store: s}
}

func (e *Emitter) Emit(ctx context.Context, level, category, projectID, format string, args ...interface{}) {
	e.emit(ctx, level, category, projectID, nil, format, args...)
}

// EmitDetails attaches structured details to the persisted entry.
func (e *Emitter) EmitDetails(ctx context.Context, level, category, projectID string, details map[string]interface{}, format string, args ...interface{}) {
	e.emit(ctx, level, category, projectID, details, format, args...)
}

func (e *Emitter) emit(ctx context.Context, level, category, projectID string, details map[string]interface{}, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	fields := logrus.Fields{"category": category}
	if projectID != "" {
		fields["project_id"] = projectID
	}
	for k, v := range details {
		fields[k] = v
	}
	entry := e.log.WithFields(fields)
	switch level {
	case models.LogLevelDebug:
		entry.Debug(msg)
	case models.LogLevelWarn:
		entry.Warn(msg)
	case models.LogLevelError:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}

	if e.store == nil {
		return
	}
	var detailsJSON string
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			detailsJSON = string(b)
		}
	}
	if err := e.store.AppendLog(ctx, &models.LogEntry{
		Level:     level,
		Category:  category,
		Message:   msg,
		Details:   detailsJSON,
		ProjectID: projectID,
		CreatedAt: time.Now(),
	}); err != nil {
		e.log.WithFields(logrus.Fields{"category": models.LogCategorySystem}).
			Warnf("append log failed: %v", err)
	}
}

func (e *Emitter) Info(ctx context.Context, category, projectID, format string, args ...interface{}) {
	e.Emit(ctx, models.LogLevelInfo, category, projectID, format, args...)
}

func (e *Emitter) Warn(ctx context.Context, category, projectID, format string, args ...interface{}) {
	e.Emit(ctx, models.LogLevelWarn, category, projectID, format, args...)
}

func (e *Emitter) Error(ctx context.Context, category, projectID, format string, args ...interface{}) {
	e.Emit(ctx, models.LogLevelError, category, projectID, format, args...)
}

func (e *Emitter) Debug(ctx context.Context, category, projectID, format string, args ...interface{}) {
	e.Emit(ctx, models.LogLevelDebug, category, projectID, format, args...)
}
