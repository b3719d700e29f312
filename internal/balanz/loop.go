package balanz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
)

// Loop is the C5 cooperative task: one per allocation group.
type Loop struct {
	group    *model.Group
	store    *model.Store
	driver   ProfileDriver
	cfg      Config
	logger   *zap.Logger
	tickNum  int
}

// NewLoop constructs the control loop for one allocation group.
func NewLoop(group *model.Group, store *model.Store, driver ProfileDriver, cfg Config, logger *zap.Logger) *Loop {
	return &Loop{group: group, store: store, driver: driver, cfg: cfg, logger: logger.With(zap.String("group_id", group.GroupID))}
}

// Run blocks until ctx is cancelled, ticking the loop at cfg.RunInterval
// after an initial cfg.FirstWait.
func (l *Loop) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(l.cfg.FirstWait):
	}

	ticker := time.NewTicker(l.cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("balanz loop panic recovered", zap.Any("panic", r))
		}
	}()

	if l.group.Suspended {
		return
	}

	l.tickNum++
	chargers := l.store.ChargersInGroup(l.group.GroupID)

	urgent := l.isUrgent(chargers)
	fullPass := l.cfg.IntervalsFull <= 0 || l.tickNum%l.cfg.IntervalsFull == 0
	if !fullPass && !urgent {
		return
	}

	if l.initializeChargers(ctx, chargers) {
		// a charger was just initialized this tick; give it time to settle
		return
	}
	l.requestPostReconnectState(ctx, chargers)
	l.rearmBlockingProfiles(ctx, chargers)
	l.installPostStartTxProfiles(ctx, chargers)
	l.planAndApply(ctx, chargers)
}

func (l *Loop) isUrgent(chargers []*model.Charger) bool {
	for _, c := range chargers {
		if c.SessionHandle == nil || !c.SessionHandle.Connected() {
			continue
		}
		if !c.ProfileInitialized {
			return true
		}
		for _, conn := range c.Connectors {
			if !conn.Status.InTransaction() && !conn.BlockingProfileReset {
				return true
			}
			if conn.ToReview {
				return true
			}
		}
	}
	return false
}

func (l *Loop) initializeChargers(ctx context.Context, chargers []*model.Charger) bool {
	didInit := false
	for _, c := range chargers {
		if c.SessionHandle == nil || !c.SessionHandle.Connected() || c.ProfileInitialized {
			continue
		}
		if err := l.driver.ClearAllDefaultProfiles(ctx, c.ChargerID); err != nil {
			l.logger.Warn("clear all default profiles failed", zap.String("charger_id", c.ChargerID), zap.Error(err))
			continue
		}
		ok := true
		for _, connID := range c.ConnectorIDsSorted() {
			if err := l.driver.SetBlockingDefaultProfile(ctx, c.ChargerID, connID); err != nil {
				l.logger.Warn("set blocking default failed", zap.String("charger_id", c.ChargerID), zap.Int("connector_id", connID), zap.Error(err))
				ok = false
			}
		}
		if err := l.driver.SetBaseDefaultProfile(ctx, c.ChargerID, l.cfg.MinAllocation); err != nil {
			l.logger.Warn("set base default failed", zap.String("charger_id", c.ChargerID), zap.Error(err))
			ok = false
		}
		if ok {
			c.ProfileInitialized = true
		}
		didInit = true
	}
	return didInit
}

func (l *Loop) requestPostReconnectState(ctx context.Context, chargers []*model.Charger) {
	for _, c := range chargers {
		if c.SessionHandle == nil || !c.SessionHandle.Connected() || c.RequestedStatus {
			continue
		}
		_ = l.driver.TriggerBootNotification(ctx, c.ChargerID)
		for _, connID := range c.ConnectorIDsSorted() {
			_ = l.driver.TriggerStatusNotification(ctx, c.ChargerID, connID)
		}
		_ = l.driver.TriggerMeterValues(ctx, c.ChargerID)
		c.RequestedStatus = true
	}
}

func (l *Loop) rearmBlockingProfiles(ctx context.Context, chargers []*model.Charger) {
	for _, c := range chargers {
		for _, conn := range c.Connectors {
			if conn.Status.InTransaction() || conn.BlockingProfileReset {
				continue
			}
			if err := l.driver.SetBlockingDefaultProfile(ctx, c.ChargerID, conn.ConnectorID); err != nil {
				l.logger.Warn("rearm blocking profile failed", zap.String("charger_id", c.ChargerID), zap.Int("connector_id", conn.ConnectorID), zap.Error(err))
			}
			conn.BlockingProfileReset = true
		}
	}
}

func (l *Loop) installPostStartTxProfiles(ctx context.Context, chargers []*model.Charger) {
	now := time.Now()
	for _, c := range chargers {
		for _, conn := range c.Connectors {
			if conn.Transaction == nil || conn.BlockingProfileReset {
				continue
			}
			if err := l.driver.SetTxProfile(ctx, c.ChargerID, conn.ConnectorID, conn.Transaction.TransactionID, l.cfg.MinAllocation); err != nil {
				l.logger.Warn("post-start tx profile failed", zap.String("charger_id", c.ChargerID), zap.Int("connector_id", conn.ConnectorID), zap.Error(err))
				continue
			}
			if err := l.driver.SetBlockingDefaultProfile(ctx, c.ChargerID, conn.ConnectorID); err != nil {
				l.logger.Warn("blocking default after tx start failed", zap.String("charger_id", c.ChargerID), zap.Int("connector_id", conn.ConnectorID), zap.Error(err))
			}
			conn.BlockingProfileReset = true
			_ = l.store.ChargeChangeImplemented(model.ChargeChange{
				ChargerID:   c.ChargerID,
				ConnectorID: conn.ConnectorID,
				Allocation:  l.cfg.MinAllocation,
			}, now)
		}
	}
}

func (l *Loop) planAndApply(ctx context.Context, chargers []*model.Charger) {
	buckets, err := model.ScheduleAt(l.group.MaxAllocationSchedule, time.Now())
	if err != nil {
		l.logger.Warn("no schedule bucket for current time", zap.Error(err))
		return
	}

	var views []ConnectorView
	for _, c := range chargers {
		for _, conn := range c.Connectors {
			views = append(views, ConnectorView{Conn: conn, ChargerPriority: conn.EffectivePriority(c.Priority), ConnMax: c.ConnMax})
		}
	}

	result := Run(views, buckets, time.Now(), l.cfg)

	changes := result.Reduce
	if len(result.Reduce) > 0 && len(result.Grow) > 0 {
		changes = append(changes, model.ChargeChange{}) // sentinel wait
	}
	changes = append(changes, result.Grow...)

	for _, change := range changes {
		if change.IsWait() {
			time.Sleep(l.cfg.WaitAfterReduce)
			continue
		}
		if !l.applyChange(ctx, change) {
			return
		}
	}
}

func (l *Loop) applyChange(ctx context.Context, change model.ChargeChange) bool {
	now := time.Now()
	if change.TransactionID == nil {
		if change.Allocation == 0 {
			if err := l.driver.SetBlockingDefaultProfile(ctx, change.ChargerID, change.ConnectorID); err != nil {
				l.logger.Warn("starter block failed, aborting remaining changes", zap.Error(err))
				return false
			}
		} else {
			if err := l.driver.ClearBlockingDefaultProfile(ctx, change.ChargerID, change.ConnectorID); err != nil {
				l.logger.Warn("starter clear-block failed", zap.Error(err))
				return true
			}
			if charger, ok := l.store.Charger(change.ChargerID); ok {
				if conn, ok := charger.Connectors[change.ConnectorID]; ok {
					conn.BlockingProfileReset = false
				}
			}
		}
	} else {
		if err := l.driver.SetTxProfile(ctx, change.ChargerID, change.ConnectorID, *change.TransactionID, change.Allocation); err != nil {
			l.logger.Warn("set tx profile failed, aborting remaining changes", zap.Error(err))
			return false
		}
	}
	if err := l.store.ChargeChangeImplemented(change, now); err != nil {
		l.logger.Warn("charge_change_implemented failed", zap.Error(err))
	}
	return true
}
