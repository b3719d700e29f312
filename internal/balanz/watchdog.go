package balanz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
)

// ModelWatchdog is C6: a global periodic sweep that synthesizes
// stop-transaction for chargers gone silent longer than TransactionTimeout.
type ModelWatchdog struct {
	store  *model.Store
	cfg    Config
	logger *zap.Logger
}

func NewModelWatchdog(store *model.Store, cfg Config, logger *zap.Logger) *ModelWatchdog {
	return &ModelWatchdog{store: store, cfg: cfg, logger: logger.Named("model_watchdog")}
}

// Run blocks until ctx is cancelled, sweeping every cfg.TransactionInterval.
func (w *ModelWatchdog) Run(ctx context.Context, chargerIDs func() []string) {
	ticker := time.NewTicker(w.cfg.TransactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(chargerIDs())
		}
	}
}

func (w *ModelWatchdog) sweep(chargerIDs []string) {
	now := time.Now()
	for _, id := range chargerIDs {
		charger, ok := w.store.Charger(id)
		if !ok {
			continue
		}
		if !charger.LastUpdate.IsZero() && now.Sub(charger.LastUpdate) <= w.cfg.TransactionTimeout {
			continue
		}
		for _, conn := range charger.Connectors {
			if conn.Transaction == nil {
				continue
			}
			txID := conn.Transaction.TransactionID
			meterStop := conn.Transaction.EnergyMeter
			session, err := w.store.StopTransaction(id, txID, meterStop, now, "Other", "")
			if err != nil {
				w.logger.Warn("watchdog stop_transaction failed", zap.String("charger_id", id), zap.Error(err))
				continue
			}
			conn.Status = model.StatusAvailable
			w.logger.Info("synthesized stop transaction for stale charger",
				zap.String("charger_id", id), zap.String("session_id", session.SessionID))
		}
	}
}
