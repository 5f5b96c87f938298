package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/platinummonkey/brace/pkg/httputil"
	"github.com/platinummonkey/brace/pkg/journal"
	"github.com/platinummonkey/brace/pkg/plugins"
)

// PluginList is the response of GET /api/v1/plugins
type PluginList struct {
	Plugins []plugins.PluginInfo `json:"plugins"`
	Count   int                  `json:"count"`
}

// ScanResult is the response of POST /api/v1/plugins/scan
type ScanResult struct {
	Candidates []string `json:"candidates"`
	Registered []string `json:"registered"`
}

// LifecycleResult is the response of a successful lifecycle call
type LifecycleResult struct {
	ID    string        `json:"id"`
	Phase plugins.Phase `json:"phase"`
	State plugins.State `json:"state"`
}

// CandidateList is the response of GET /api/v1/candidates
type CandidateList struct {
	Candidates []*plugins.Inspection `json:"candidates"`
	Count      int                   `json:"count"`
}

// EventList is the response of GET /api/v1/events
type EventList struct {
	Events []journal.Entry `json:"events"`
	Count  int             `json:"count"`
}

type lifecycleAction struct {
	phase plugins.Phase
	call  func(r *plugins.Registry, ctx context.Context, id string) error
}

var lifecycleActions = map[string]lifecycleAction{
	"init":      {phase: plugins.PhaseInit, call: (*plugins.Registry).InitOne},
	"activate":  {phase: plugins.PhaseOnInitialization, call: (*plugins.Registry).ActivateOne},
	"uninstall": {phase: plugins.PhaseOnUninstall, call: (*plugins.Registry).UninstallOne},
}

func (s *Server) respond(w http.ResponseWriter, data any) {
	if err := httputil.WriteJSON(w, http.StatusOK, data); err != nil {
		s.log.WithError(err).Error("Failed to write response")
	}
}

func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.Infos()
	s.respond(w, PluginList{Plugins: infos, Count: len(infos)})
}

func (s *Server) getPlugin(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}

	u, found := s.registry.Get(id)
	if !found {
		httputil.WriteNotFound(w, "plugin not found: "+id)
		return
	}
	s.respond(w, u.Info())
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathVar(w, r, "id")
	if !ok {
		return
	}
	name, ok := httputil.PathVar(w, r, "action")
	if !ok {
		return
	}
	action, known := lifecycleActions[name]
	if !known {
		httputil.WriteBadRequest(w, "unknown lifecycle action: "+name)
		return
	}

	// the unit is looked up before the call as a successful uninstall removes it
	u, found := s.registry.Get(id)
	if err := action.call(s.registry, r.Context(), id); err != nil {
		writeLifecycleError(w, id, err)
		return
	}

	result := LifecycleResult{ID: id, Phase: action.phase}
	if found {
		result.State = u.State()
	}
	s.respond(w, result)
}

// writeLifecycleError maps registry errors to status codes
func writeLifecycleError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, plugins.ErrUnknownPluginID):
		httputil.WriteNotFound(w, err.Error())
	case errors.Is(err, plugins.ErrInvalidLifecycleTransition):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteUnavailable(w, err.Error())
	default:
		details := map[string]string{"plugin_id": id}
		var lerr *plugins.LifecycleError
		if errors.As(err, &lerr) {
			details["phase"] = string(lerr.Phase)
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error(), details)
	}
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	q := httputil.NewQuery(r)
	register := q.Bool("register", true)
	if err := q.Err(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	candidates, err := s.registry.Scan(r.Context(), register)
	if err != nil {
		if errors.Is(err, plugins.ErrDirectoryUnavailable) {
			httputil.WriteUnavailable(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	s.respond(w, ScanResult{
		Candidates: candidates,
		Registered: s.registry.IDs(),
	})
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	paths, err := s.registry.Scan(r.Context(), false)
	if err != nil {
		httputil.WriteUnavailable(w, err.Error())
		return
	}

	result := CandidateList{Candidates: make([]*plugins.Inspection, 0, len(paths))}
	for _, path := range paths {
		inspection, err := s.inspector.Inspect(path)
		if err != nil {
			// removed between the scan and the inspection
			continue
		}
		result.Candidates = append(result.Candidates, inspection)
	}
	result.Count = len(result.Candidates)

	s.respond(w, result)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := httputil.NewQuery(r)
	filter := journal.Filter{
		PluginID: q.String("plugin", ""),
		Phase:    plugins.Phase(q.String("phase", "")),
		Failed:   q.Bool("failed", false),
		Since:    q.Time("since"),
		Limit:    q.Int("limit", journal.DefaultListLimit),
	}
	if err := q.Err(); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	entries, err := s.events.List(ctx, filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	s.respond(w, EventList{Events: entries, Count: len(entries)})
}
