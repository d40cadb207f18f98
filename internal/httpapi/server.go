// Package httpapi is the management surface of the attendance service:
// scan injection, manual search, roster CRUD and session/stat queries.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"pobchecker/internal/pob/codec"
	"pobchecker/internal/pob/engine"
	"pobchecker/internal/pob/store"
)

// Dispatcher is the slice of the engine the API needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, payload string) (engine.Outcome, error)
	DispatchManual(ctx context.Context, term string) (engine.Outcome, error)
}

type Dependencies struct {
	Logger *log.Logger
	Addr   string
	Engine Dispatcher
	Roster store.RosterStore
	Ledger store.LedgerStore
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	engine     Dispatcher
	roster     store.RosterStore
	ledger     store.LedgerStore
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger: d.Logger,
		mux:    mux,
		engine: d.Engine,
		roster: d.Roster,
		ledger: d.Ledger,
	}

	mux.HandleFunc("POST /v1/scan", s.handleScan)
	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/people", s.handleListPeople)
	mux.HandleFunc("POST /v1/people", s.handleCreatePerson)
	mux.HandleFunc("PUT /v1/people/{identifier}", s.handleUpdatePerson)
	mux.HandleFunc("DELETE /v1/people/{identifier}", s.handleDeletePerson)
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("GET /v1/stats", s.handleStats)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ── Scan and search ──────────────────────────────────────────────────────────

type scanRequest struct {
	Payload string `json:"payload"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.Payload == "" {
		writeError(w, http.StatusBadRequest, "empty_payload", "payload is required")
		return
	}

	out, err := s.engine.Dispatch(r.Context(), req.Payload)
	if err != nil {
		s.logger.Printf("scan dispatch error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type searchRequest struct {
	Term string `json:"term"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.Term == "" {
		writeError(w, http.StatusBadRequest, "empty_term", "term is required")
		return
	}

	out, err := s.engine.DispatchManual(r.Context(), req.Term)
	if err != nil {
		s.logger.Printf("search dispatch error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ── Roster CRUD ──────────────────────────────────────────────────────────────

type personView struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Group      int    `json:"group"`
	OnPlatform bool   `json:"on_platform"`
	EmployeeNo *int64 `json:"employee_no,omitempty"`
}

func viewOf(p store.Person) personView {
	return personView{
		Identifier: p.Identifier,
		Name:       p.Name,
		Group:      p.Group,
		OnPlatform: p.OnPlatform,
		EmployeeNo: p.EmployeeNo,
	}
}

func viewsOf(people []store.Person) []personView {
	out := make([]personView, len(people))
	for i, p := range people {
		out[i] = viewOf(p)
	}
	return out
}

func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if term := q.Get("q"); term != "" {
		people, err := s.roster.Search(r.Context(), term)
		if err != nil {
			s.logger.Printf("search people error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeJSON(w, http.StatusOK, viewsOf(people))
		return
	}

	group, ok := intParam(q.Get("group"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_group", "group must be a positive integer")
		return
	}
	people, err := s.roster.ListByGroup(r.Context(), group)
	if err != nil {
		s.logger.Printf("list people error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, viewsOf(people))
}

type personRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Group      int    `json:"group"`
	EmployeeNo *int64 `json:"employee_no"`
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req personRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	id := codec.Normalize(req.Identifier)
	if !codec.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid_identifier", "identifier must be 11 digits")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "empty_name", "name is required")
		return
	}
	if req.Group <= 0 {
		req.Group = 1
	}

	p := store.Person{
		Identifier: id,
		Name:       req.Name,
		Group:      req.Group,
		EmployeeNo: req.EmployeeNo,
	}
	if err := s.roster.UpsertPerson(r.Context(), p); err != nil {
		s.logger.Printf("create person error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(p))
}

func (s *Server) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	id := codec.Normalize(r.PathValue("identifier"))
	if !codec.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid_identifier", "identifier must be 11 digits")
		return
	}

	var req personRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "empty_name", "name is required")
		return
	}
	if req.Group <= 0 {
		writeError(w, http.StatusBadRequest, "bad_group", "group must be a positive integer")
		return
	}

	p := store.Person{
		Identifier: id,
		Name:       req.Name,
		Group:      req.Group,
		EmployeeNo: req.EmployeeNo,
	}
	if err := s.roster.UpdatePerson(r.Context(), p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no such person")
			return
		}
		s.logger.Printf("update person error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	id := codec.Normalize(r.PathValue("identifier"))
	if !codec.Valid(id) {
		writeError(w, http.StatusBadRequest, "invalid_identifier", "identifier must be 11 digits")
		return
	}

	removed, err := s.roster.DeletePerson(r.Context(), id)
	if err != nil {
		s.logger.Printf("delete person error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", "no such person")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Session and stats ────────────────────────────────────────────────────────

type sessionView struct {
	Active    bool     `json:"active"`
	SessionID int64    `json:"session_id,omitempty"`
	Checked   []string `json:"checked"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id, active, err := s.ledger.ActiveSessionID(r.Context())
	if err != nil {
		s.logger.Printf("active session error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	view := sessionView{Active: active, Checked: []string{}}
	if active {
		view.SessionID = id
		checked, err := s.ledger.CheckedIdentifiers(r.Context(), id)
		if err != nil {
			s.logger.Printf("checked identifiers error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		for identifier := range checked {
			view.Checked = append(view.Checked, identifier)
		}
		sort.Strings(view.Checked)
	}
	writeJSON(w, http.StatusOK, view)
}

type statsView struct {
	Group      int `json:"group"`
	Total      int `json:"total"`
	OnPlatform int `json:"on_platform"`
	Ashore     int `json:"ashore"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	group, ok := intParam(r.URL.Query().Get("group"))
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_group", "group must be a positive integer")
		return
	}

	people, err := s.roster.ListByGroup(r.Context(), group)
	if err != nil {
		s.logger.Printf("stats error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	view := statsView{Group: group, Total: len(people)}
	for _, p := range people {
		if p.OnPlatform {
			view.OnPlatform++
		}
	}
	view.Ashore = view.Total - view.OnPlatform
	writeJSON(w, http.StatusOK, view)
}

func intParam(raw string) (int, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
