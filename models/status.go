package models

import "StoryReel-server/errs"

// legalTransitions is the authoritative adjacency table of the project state
// machine. Only the orchestrator writes queued/generating/error; only the
// render stage writes generating->ready.
var legalTransitions = map[string][]string{
	ProjectStatusDraft: {ProjectStatusQueued},
	// queued -> error covers a run that dies before generating ever lands,
	// e.g. the very first store write fails
	ProjectStatusQueued:     {ProjectStatusGenerating, ProjectStatusError},
	ProjectStatusGenerating: {ProjectStatusReady, ProjectStatusError, ProjectStatusDraft},
	ProjectStatusReady:      {ProjectStatusGenerating},
	ProjectStatusError:      {ProjectStatusQueued},
}

func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the project to the given status or rejects the attempt
// without touching stored state.
func (p *Project) Transition(to string) error {
	if !CanTransition(p.Status, to) {
		return errs.New(errs.InvalidTransition, "cannot transition project %s from %s to %s", p.ID, p.Status, to)
	}
	p.Status = to
	return nil
}
