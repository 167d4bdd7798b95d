package store

import (
	"context"
	"sync"
	"time"

	"StoryReel-server/models"
)

// MemoryStore keeps everything in process. Used by tests and in dev mode when
// no MySQL DSN is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
	logs     []models.LogEntry
	nextLog  uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*models.Project),
		nextLog:  1,
	}
}

func copyProject(p *models.Project) *models.Project {
	out := *p
	out.Manifest = p.Manifest.Clone()
	if p.Chapters != nil {
		out.Chapters = make(models.ChapterList, len(p.Chapters))
		copy(out.Chapters, p.Chapters)
	}
	return &out
}

func (s *MemoryStore) LoadProject(ctx context.Context, id string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProject(p), nil
}

func (s *MemoryStore) SaveProject(ctx context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UpdatedAt = time.Now()
	s.projects[p.ID] = copyProject(p)
	return nil
}

func (s *MemoryStore) ListProjects(ctx context.Context) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *copyProject(p))
	}
	return out, nil
}

func (s *MemoryStore) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
	for i := range s.logs {
		if s.logs[i].ProjectID == id {
			s.logs[i].ProjectID = ""
		}
	}
	return nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.nextLog
	s.nextLog++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *MemoryStore) ListLogs(ctx context.Context, filter LogFilter) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var out []models.LogEntry
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.logs[i]
		if filter.Level != "" && e.Level != filter.Level {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.ProjectID != "" && e.ProjectID != filter.ProjectID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) ClearLogs(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = nil
	return nil
}
