package store

import (
	"context"
	"errors"

	"StoryReel-server/models"
)

var ErrNotFound = errors.New("record not found")

type LogFilter struct {
	Level     string
	Category  string
	ProjectID string
	Limit     int
}

// Store is the persistence collaborator. SaveProject is a full replace of the
// project record, manifest included.
type Store interface {
	LoadProject(ctx context.Context, id string) (*models.Project, error)
	SaveProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context) ([]models.Project, error)
	DeleteProject(ctx context.Context, id string) error

	AppendLog(ctx context.Context, entry *models.LogEntry) error
	ListLogs(ctx context.Context, filter LogFilter) ([]models.LogEntry, error)
	ClearLogs(ctx context.Context) error
}
