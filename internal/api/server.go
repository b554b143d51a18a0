package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"ighub/pkg/logger"
	"ighub/pkg/monitor"
	"ighub/pkg/session"
	"ighub/pkg/store"
	"ighub/pkg/webhook"
)

// Server maps HTTP requests onto the session manager, monitor and event
// sink. Business failures (bad password, remote API errors) are returned as
// 200s with success=false; only authorization failures and missing resources
// map to non-2xx status codes.
type Server struct {
	manager   *session.Manager
	monitor   *monitor.Monitor
	sink      *webhook.Sink
	sessions  store.SessionStore
	authToken string
	logger    logger.Logger
}

// NewServer creates the API server. sessions may be nil when the hub is
// running memory-only; the /sessions route then reports the store as
// unavailable.
func NewServer(mgr *session.Manager, mon *monitor.Monitor, sink *webhook.Sink, sessions store.SessionStore, authToken string, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Server{
		manager:   mgr,
		monitor:   mon,
		sink:      sink,
		sessions:  sessions,
		authToken: authToken,
		logger:    log,
	}
}

// Routes registers all handlers on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check stays unauthenticated.
	mux.HandleFunc("GET /{$}", s.handleHealth)

	mux.HandleFunc("POST /login", s.auth(s.handleLogin))
	mux.HandleFunc("POST /logout/{username}", s.auth(s.handleLogout))
	mux.HandleFunc("GET /sessions", s.auth(s.handleSessions))
	mux.HandleFunc("GET /user/{username}", s.auth(s.handleUserInfo))
	mux.HandleFunc("GET /media/{username}", s.auth(s.handleMedia))
	mux.HandleFunc("GET /followers/{username}", s.auth(s.handleFollowers))
	mux.HandleFunc("POST /send/{username}", s.auth(s.handleSendMessage))

	mux.HandleFunc("POST /monitor/start", s.auth(s.handleMonitorStartAll))
	mux.HandleFunc("POST /monitor/start/{username}", s.auth(s.handleMonitorStartOne))
	mux.HandleFunc("POST /monitor/stop", s.auth(s.handleMonitorStopAll))
	mux.HandleFunc("POST /monitor/stop/{username}", s.auth(s.handleMonitorStopOne))
	mux.HandleFunc("GET /monitor/status", s.auth(s.handleMonitorStatus))

	mux.HandleFunc("GET /events", s.auth(s.handleEvents))
	mux.HandleFunc("POST /events/{id}/processed", s.auth(s.handleMarkProcessed))

	mux.HandleFunc("GET /ws/events", s.auth(s.handleEventStream))

	return mux
}

// auth enforces the shared-secret header when one is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("X-Auth-Token") != s.authToken {
			s.writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.Stats()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Message:        "Instagram hub is running",
		ActiveSessions: stats.ActiveSessions,
		Usernames:      stats.Usernames,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "username and password are required"})
		return
	}

	result := s.manager.Login(req.Username, req.Password)
	// Login failures are application outcomes, not transport errors.
	s.writeJSON(w, http.StatusOK, loginResponse{
		Success:  result.Success,
		Message:  result.Message,
		UserInfo: result.Profile,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	s.monitor.StopOne(username)
	success, message := s.manager.Logout(username)
	s.writeJSON(w, http.StatusOK, messageResponse{Success: success, Message: message})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "session store unavailable"})
		return
	}

	records, err := s.sessions.List(true)
	if err != nil {
		s.logger.WithError(err).Error("failed to list sessions")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: fmt.Sprintf("failed to get sessions: %v", err)})
		return
	}

	resp := sessionsResponse{Sessions: make([]sessionInfo, 0, len(records))}
	for _, rec := range records {
		resp.Sessions = append(resp.Sessions, sessionInfo{
			Username:  rec.Username,
			IsActive:  rec.IsActive,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	profile, err := s.manager.UserInfo(username)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "Session not found or inactive"})
		return
	}
	s.writeJSON(w, http.StatusOK, userInfoResponse{Success: true, Message: "User info retrieved", UserInfo: profile})
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	client, ok := s.manager.Client(username)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "Session not found or inactive"})
		return
	}

	count := 10
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	medias, err := client.UserMedias(count)
	if err != nil {
		s.writeJSON(w, http.StatusOK, errorResponse{Message: fmt.Sprintf("Failed to get media: %v", err)})
		return
	}
	s.writeJSON(w, http.StatusOK, mediaResponse{Success: true, Count: len(medias), Medias: medias})
}

func (s *Server) handleFollowers(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	client, ok := s.manager.Client(username)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "Session not found or inactive"})
		return
	}

	profile, err := client.AccountInfo()
	if err != nil {
		s.writeJSON(w, http.StatusOK, errorResponse{Message: fmt.Sprintf("Failed to get followers: %v", err)})
		return
	}
	s.writeJSON(w, http.StatusOK, followersResponse{
		Success:        true,
		Username:       profile.Username,
		FollowerCount:  profile.FollowerCount,
		FollowingCount: profile.FollowingCount,
		MediaCount:     profile.MediaCount,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	client, ok := s.manager.Client(username)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "Session not found or inactive"})
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}
	if req.Text == "" || len(req.Recipients) == 0 {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "text and recipients are required"})
		return
	}

	if _, err := client.SendDirectMessage(req.Text, req.Recipients); err != nil {
		s.writeJSON(w, http.StatusOK, errorResponse{Message: fmt.Sprintf("Failed to send message: %v", err)})
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Message sent"})
}

func (s *Server) handleMonitorStartAll(w http.ResponseWriter, r *http.Request) {
	s.monitor.StartAll()
	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Monitoring started"})
}

func (s *Server) handleMonitorStartOne(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if _, ok := s.manager.Client(username); !ok {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "Session not found or inactive"})
		return
	}
	started := s.monitor.StartOne(username)
	msg := fmt.Sprintf("Monitoring started for %s", username)
	if !started {
		msg = fmt.Sprintf("Already monitoring %s", username)
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
}

func (s *Server) handleMonitorStopAll(w http.ResponseWriter, r *http.Request) {
	s.monitor.StopAll()
	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Monitoring stopped"})
}

func (s *Server) handleMonitorStopOne(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	stopped := s.monitor.StopOne(username)
	msg := fmt.Sprintf("Monitoring stopped for %s", username)
	if !stopped {
		msg = fmt.Sprintf("Not monitoring %s", username)
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: msg})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.monitor.Status())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var processed *bool
	if v := r.URL.Query().Get("processed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: "processed must be a boolean"})
			return
		}
		processed = &b
	}

	events, total, err := s.sink.ListEvents(limit, processed)
	if err != nil {
		s.logger.WithError(err).Error("failed to list events")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to list events"})
		return
	}
	s.writeJSON(w, http.StatusOK, eventsResponse{Events: events, Total: total})
}

func (s *Server) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sink.MarkProcessed(id); err != nil {
		if err == store.ErrNotFound {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Message: "event not found"})
			return
		}
		s.logger.WithError(err).Error("failed to mark event processed")
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "failed to mark event processed"})
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Event marked processed"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}
