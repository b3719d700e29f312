package ocpp

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
	"github.com/evbalanz/balanzd/internal/modelerr"
)

// Config configures the server-wide OCPP session behavior.
type Config struct {
	SessionConfig
	DefaultGroupID         string
	AutoRegisterChargers   bool
	DefaultChargerPriority int
	DefaultConnMax         float64
	DefaultConnectorCount  int
}

// Server accepts charger WebSocket connections at one path per charger id
// and hosts their Session objects.
type Server struct {
	store    *model.Store
	logger   *zap.Logger
	cfg      Config
	upgrader websocket.Upgrader
	handlers *handlers

	mu       sync.Mutex
	sessions map[string]*Session
}

// New constructs the OCPP server. store is the shared entity store this
// server's sessions mutate.
func New(store *model.Store, logger *zap.Logger, cfg Config) *Server {
	s := &Server{
		store:    store,
		logger:   logger.Named("ocpp"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true },
			Subprotocols: []string{"ocpp1.6"},
		},
	}
	s.handlers = newHandlers(store, logger.Named("ocpp"))
	return s
}

// Mount registers the per-charger WebSocket upgrade route on r. It must be
// mounted after any more specific routes (e.g. "/api") since it claims a
// single wildcard path segment.
func (s *Server) Mount(r chi.Router) {
	r.Get("/{chargerID}", s.handleConnection)
}

// Session looks up the live session for a charger, used by the profile
// driver to issue outbound calls.
func (s *Server) session(chargerID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chargerID]
	return sess, ok
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	chargerID := chi.URLParam(r, "chargerID")
	logger := s.logger.With(zap.String("charger_id", chargerID))

	charger, ok := s.store.Charger(chargerID)
	if !ok {
		if !s.cfg.AutoRegisterChargers {
			http.Error(w, "charge point unknown", http.StatusForbidden)
			return
		}
		charger = s.autoRegister(chargerID)
	}

	if header := r.Header.Get("Authorization"); charger.AuthSHA != "" {
		if !strings.HasPrefix(header, "Basic ") || !checkBasicAuth(header, charger.AuthSHA) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := newSession(chargerID, conn, s.store, s.logger, s.cfg.SessionConfig)
	charger.SessionHandle = session

	s.mu.Lock()
	s.sessions[chargerID] = session
	s.mu.Unlock()

	logger.Info("charger connected")
	session.run(r.Context(), s.handlers)

	s.mu.Lock()
	delete(s.sessions, chargerID)
	s.mu.Unlock()
	logger.Info("charger disconnected")
}

// Call issues an arbitrary OCPP action to a connected charger and decodes
// its confirmation into out, used by the admin API's pass-through
// commands (Reset, RemoteStartTransaction, ChangeConfiguration, ...).
func (s *Server) Call(ctx context.Context, chargerID, action string, payload, out any) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q is not connected", chargerID)
	}
	return sess.Call(ctx, action, payload, out)
}

func (s *Server) autoRegister(chargerID string) *model.Charger {
	charger := &model.Charger{
		ChargerID:  chargerID,
		Alias:      chargerID,
		GroupID:    s.cfg.DefaultGroupID,
		Priority:   s.cfg.DefaultChargerPriority,
		ConnMax:    s.cfg.DefaultConnMax,
		Connectors: make(map[int]*model.Connector),
	}
	n := s.cfg.DefaultConnectorCount
	if n <= 0 {
		n = 1
	}
	for i := 1; i <= n; i++ {
		charger.Connectors[i] = &model.Connector{ChargerID: chargerID, ConnectorID: i, Status: model.StatusAvailable}
	}
	s.store.PutCharger(charger)
	s.logger.Info("auto-registered charger", zap.String("charger_id", chargerID), zap.String("group_id", s.cfg.DefaultGroupID))
	return charger
}
