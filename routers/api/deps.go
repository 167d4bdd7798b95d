package api

import (
	"errors"
	"net/http"

	"StoryReel-server/errs"
	"StoryReel-server/logging"
	"StoryReel-server/pipeline"
	"StoryReel-server/store"
)

var (
	projectStore store.Store
	orchestrator *pipeline.Orchestrator
	emitter      *logging.Emitter
)

// Setup wires the handlers to their collaborators. Called once from main.
func Setup(s store.Store, orch *pipeline.Orchestrator, emit *logging.Emitter) {
	projectStore = s
	orchestrator = orch
	emitter = emit
}

// httpStatus maps the failure taxonomy onto response codes. Unclassified
// errors are internal.
func httpStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	switch errs.KindOf(err) {
	case errs.InvalidInput:
		return http.StatusBadRequest
	case errs.InvalidTransition, errs.Conflict, errs.InvalidState:
		return http.StatusConflict
	case errs.ProviderUnavailable:
		return http.StatusServiceUnavailable
	case errs.Transient:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
