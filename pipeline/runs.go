package pipeline

import "sync"

// runRegistry tracks the single active generation run per project plus
// in-flight scene regenerations. Starting a new run supersedes the previous
// one: its in-flight provider calls finish but every later commit is dropped
// at the registry check. Commits are serialized under the registry lock so a
// stale run can never slip a write in between a newer run's check and save.
type runRegistry struct {
	mu         sync.Mutex
	active     map[string]string
	sceneLocks map[string]struct{}
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		active:     make(map[string]string),
		sceneLocks: make(map[string]struct{}),
	}
}

// begin marks runID as the active run for the project, superseding any
// previous run.
func (r *runRegistry) begin(projectID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[projectID] = runID
}

// finish clears the registration, unless a newer run already took over.
func (r *runRegistry) finish(projectID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[projectID] == runID {
		delete(r.active, projectID)
	}
}

// withActive executes commit while holding the registry lock, but only if
// runID is still the project's active run. Returns false when superseded.
func (r *runRegistry) withActive(projectID, runID string, commit func() error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[projectID] != runID {
		return false, nil
	}
	return true, commit()
}

// lockScene claims a scene for regeneration. A second caller on the same
// scene gets false and is rejected with Conflict.
func (r *runRegistry) lockScene(projectID, sceneID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := projectID + "/" + sceneID
	if _, busy := r.sceneLocks[key]; busy {
		return false
	}
	r.sceneLocks[key] = struct{}{}
	return true
}

func (r *runRegistry) unlockScene(projectID, sceneID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sceneLocks, projectID+"/"+sceneID)
}
