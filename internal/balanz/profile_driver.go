package balanz

import "context"

// ProfileDriver is the C3 charging-profile driver as seen by the balanz
// loop: typed intents the loop can issue without knowing the OCPP wire
// encoding. Implemented by internal/ocpp.
type ProfileDriver interface {
	ClearAllDefaultProfiles(ctx context.Context, chargerID string) error
	SetBaseDefaultProfile(ctx context.Context, chargerID string, minAllocation float64) error
	SetBlockingDefaultProfile(ctx context.Context, chargerID string, connectorID int) error
	ClearBlockingDefaultProfile(ctx context.Context, chargerID string, connectorID int) error
	SetTxProfile(ctx context.Context, chargerID string, connectorID, transactionID int, limitAmps float64) error

	TriggerBootNotification(ctx context.Context, chargerID string) error
	TriggerStatusNotification(ctx context.Context, chargerID string, connectorID int) error
	TriggerMeterValues(ctx context.Context, chargerID string) error
}
