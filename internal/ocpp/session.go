package ocpp

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
	"github.com/evbalanz/balanzd/internal/modelerr"
)

// Session is one connected charger's OCPP session (C2). It owns the
// WebSocket, decodes inbound calls, routes them to the entity store,
// serializes outbound calls through a correlator, and tracks liveness.
type Session struct {
	chargerID string
	conn      *websocket.Conn
	store     *model.Store
	logger    *zap.Logger
	cfg       SessionConfig

	writeMu sync.Mutex
	corr    *correlator

	mu         sync.Mutex
	lastUpdate time.Time
	closed     bool
}

// SessionConfig holds the per-session timing knobs.
type SessionConfig struct {
	WatchdogInterval time.Duration
	WatchdogStale    time.Duration
	ReplyTimeout     time.Duration
	HTTPAuthDelay    time.Duration
	HTTPAuthEnabled  bool
}

func newSession(chargerID string, conn *websocket.Conn, store *model.Store, logger *zap.Logger, cfg SessionConfig) *Session {
	s := &Session{
		chargerID:  chargerID,
		conn:       conn,
		store:      store,
		logger:     logger.With(zap.String("charger_id", chargerID)),
		cfg:        cfg,
		lastUpdate: time.Now(),
	}
	s.corr = newCorrelator(cfg.ReplyTimeout, s.writeFrame)
	return s
}

// Connected implements model.SessionHandle.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) writeFrame(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUpdate = time.Now()
	s.mu.Unlock()
	if charger, ok := s.store.Charger(s.chargerID); ok {
		charger.LastUpdate = time.Now()
	}
}

// run is the inbound read loop; it blocks until the connection closes or
// ctx is cancelled.
func (s *Session) run(ctx context.Context, dispatch *handlers) {
	go s.watchdog(ctx)
	if s.cfg.HTTPAuthEnabled {
		if charger, ok := s.store.Charger(s.chargerID); ok && charger.AuthSHA == "" {
			go s.provisionAuth(ctx)
		}
	}

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Info("session closed", zap.Error(err))
			s.markClosed()
			return
		}
		s.touch()

		env, err := decodeEnvelope(raw)
		if err != nil {
			s.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch env.messageType {
		case messageTypeCall:
			s.handleCall(env, dispatch)
		case messageTypeCallResult:
			s.corr.Resolve(env.uniqueID, env.payload, nil)
		case messageTypeCallError:
			s.corr.Resolve(env.uniqueID, nil, errFromCallError(env))
		}
	}
}

func (s *Session) handleCall(env *envelope, dispatch *handlers) {
	result, err := dispatch.handle(s.chargerID, env.action, env.payload)
	if err != nil {
		kind := modelerr.KindOf(err)
		frame, encErr := encodeCallError(env.uniqueID, errorCodeFor(kind), fmtErrorDesc(err))
		if encErr == nil {
			_ = s.writeFrame(frame)
		}
		return
	}
	frame, err := encodeCallResult(env.uniqueID, result)
	if err != nil {
		s.logger.Error("failed to encode call result", zap.Error(err))
		return
	}
	_ = s.writeFrame(frame)
}

func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if charger, ok := s.store.Charger(s.chargerID); ok {
		charger.SessionHandle = nil
		charger.RequestedStatus = false
		charger.ProfileInitialized = false
	}
}

// watchdog closes the connection if no inbound message has been seen for
// WatchdogStale seconds, per spec §4.2.
func (s *Session) watchdog(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := time.Since(s.lastUpdate) > s.cfg.WatchdogStale
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			if stale {
				s.logger.Error("watchdog: no activity, closing connection")
				_ = s.conn.Close()
				return
			}
		}
	}
}

// Call issues an outbound OCPP call and awaits its reply, serialized with
// any other outbound call to this charger.
func (s *Session) Call(ctx context.Context, action string, payload, out any) error {
	return s.corr.Call(ctx, action, payload, out)
}

func errFromCallError(env *envelope) error {
	return &callError{code: env.errorCode, desc: env.errorDesc}
}

type callError struct {
	code string
	desc string
}

func (e *callError) Error() string { return e.code + ": " + e.desc }
