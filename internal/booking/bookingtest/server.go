// Package bookingtest provides an in-memory booking service for tests.
package bookingtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Capacity is the number of bookings accepted per municipality and date.
const Capacity = 10

type item struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Volume      float64 `json:"volume"`
}

type booking struct {
	ID             int64  `json:"id"`
	AccessToken    string `json:"accessToken"`
	Municipality   string `json:"municipality"`
	CollectionDate string `json:"collectionDate"`
	TimeSlot       string `json:"timeSlot"`
	CurrentStatus  string `json:"currentStatus"`
	Items          []item `json:"items"`
}

var transitions = map[string]map[string]string{
	"assign":   {"RECEIVED": "ASSIGNED"},
	"start":    {"ASSIGNED": "IN_PROGRESS"},
	"complete": {"IN_PROGRESS": "COMPLETED"},
}

// Service is the in-memory booking API. It serves the routes under /api.
type Service struct {
	mu       sync.Mutex
	bookings map[string]*booking
	perDate  map[string]int
	nextID   int64

	latency  atomic.Int64
	requests atomic.Int64

	mux *http.ServeMux
}

// NewService creates an empty booking service.
func NewService() *Service {
	s := &Service{
		bookings: make(map[string]*booking),
		perDate:  make(map[string]int),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/bookings", s.handleCreate)
	s.mux.HandleFunc("/api/bookings/token/", s.handleLookup)
	s.mux.HandleFunc("/api/staff/bookings", s.handleList)
	s.mux.HandleFunc("/api/staff/bookings/token/", s.handleTransition)
	s.mux.HandleFunc("/api/staff/dashboard/summary", s.handleSummary)
	return s
}

// SetLatency delays every subsequent response by d.
func (s *Service) SetLatency(d time.Duration) {
	s.latency.Store(int64(d))
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if d := time.Duration(s.latency.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	s.mux.ServeHTTP(w, r)
}

// Server is a Service listening on a local test address.
type Server struct {
	*httptest.Server
	*Service
}

// NewServer starts a fake booking service.
func NewServer() *Server {
	svc := NewService()
	return &Server{Server: httptest.NewServer(svc), Service: svc}
}

// BaseURL returns the API root, e.g. http://127.0.0.1:1234/api.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// Requests returns the number of requests served.
func (s *Service) Requests() int64 {
	return s.requests.Load()
}

// Bookings returns the number of stored bookings.
func (s *Service) Bookings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

// Status returns the current status of the booking with token.
func (s *Service) Status(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bookings[token]; ok {
		return b.CurrentStatus
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"message": msg, "status": status})
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Municipality   string `json:"municipality"`
		CollectionDate string `json:"collectionDate"`
		TimeSlot       string `json:"timeSlot"`
		Items          []item `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.Municipality == "" || req.CollectionDate == "" || len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	s.mu.Lock()
	key := req.Municipality + "|" + req.CollectionDate
	if s.perDate[key] >= Capacity {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "capacity reached for "+req.Municipality+" on "+req.CollectionDate)
		return
	}
	s.perDate[key]++
	s.nextID++
	b := &booking{
		ID:             s.nextID,
		AccessToken:    fmt.Sprintf("%s-%s-%06d", strings.ToUpper(req.Municipality), req.CollectionDate[:4], s.nextID),
		Municipality:   req.Municipality,
		CollectionDate: req.CollectionDate,
		TimeSlot:       req.TimeSlot,
		CurrentStatus:  "RECEIVED",
		Items:          req.Items,
	}
	s.bookings[b.AccessToken] = b
	copied := *b
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, copied)
}

func (s *Service) handleLookup(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/api/bookings/token/")

	s.mu.Lock()
	b, ok := s.bookings[token]
	var copied booking
	if ok {
		copied = *b
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	writeJSON(w, http.StatusOK, copied)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		list = append(list, *b)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/staff/bookings/token/")
	idx := strings.LastIndexByte(rest, '/')
	if idx < 0 {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	token, action := rest[:idx], rest[idx+1:]

	allowed, ok := transitions[action]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	s.mu.Lock()
	b, found := s.bookings[token]
	if !found {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	next, valid := allowed[b.CurrentStatus]
	if !valid {
		current := b.CurrentStatus
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "cannot "+action+" a booking in state "+current)
		return
	}
	b.CurrentStatus = next
	copied := *b
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, copied)
}

func (s *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	byStatus := make(map[string]int)
	for _, b := range s.bookings {
		byStatus[b.CurrentStatus]++
	}
	total := len(s.bookings)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"byStatus": byStatus,
	})
}
