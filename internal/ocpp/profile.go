package ocpp

import (
	"context"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/remotetrigger"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/smartcharging"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"

	"github.com/evbalanz/balanzd/internal/modelerr"
)

// Fixed profile-ID conventions for the five charging-profile primitives
// the balanz engine drives (spec §4.3). These never vary at runtime.
const (
	profileIDBaseDefault     = 1
	profileIDBlockingDefault = 2
	profileIDTxProfile       = 3

	stackLevelBase     = 0
	stackLevelBlocking = 1
	stackLevelTx       = 3

	connectorIDChargerWide = 0
)

// The Server implements balanz.ProfileDriver by issuing SetChargingProfile
// / ClearChargingProfile / TriggerMessage calls over a charger's session.

func (s *Server) ClearAllDefaultProfiles(ctx context.Context, chargerID string) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q not connected", chargerID)
	}
	req := smartcharging.ClearChargingProfileRequest{
		ChargingProfilePurpose: types.ChargingProfilePurposeTxDefaultProfile,
	}
	var conf smartcharging.ClearChargingProfileConfirmation
	return callAndCheck(ctx, sess, "ClearChargingProfile", req, &conf, func() string { return string(conf.Status) })
}

func (s *Server) SetBaseDefaultProfile(ctx context.Context, chargerID string, minAllocation float64) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q not connected", chargerID)
	}
	profile := types.ChargingProfile{
		ChargingProfileId:      profileIDBaseDefault,
		StackLevel:             stackLevelBase,
		ChargingProfilePurpose: types.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    types.ChargingProfileKindAbsolute,
		ChargingSchedule: &types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitAmperes,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: minAllocation},
			},
		},
	}
	req := smartcharging.SetChargingProfileRequest{ConnectorId: connectorIDChargerWide, ChargingProfile: profile}
	var conf smartcharging.SetChargingProfileConfirmation
	return callAndCheck(ctx, sess, "SetChargingProfile", req, &conf, func() string { return string(conf.Status) })
}

func (s *Server) SetBlockingDefaultProfile(ctx context.Context, chargerID string, connectorID int) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q not connected", chargerID)
	}
	profile := types.ChargingProfile{
		ChargingProfileId:      profileIDBlockingDefault,
		StackLevel:             stackLevelBlocking,
		ChargingProfilePurpose: types.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    types.ChargingProfileKindAbsolute,
		ChargingSchedule: &types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitAmperes,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 0},
			},
		},
	}
	req := smartcharging.SetChargingProfileRequest{ConnectorId: connectorID, ChargingProfile: profile}
	var conf smartcharging.SetChargingProfileConfirmation
	return callAndCheck(ctx, sess, "SetChargingProfile", req, &conf, func() string { return string(conf.Status) })
}

func (s *Server) ClearBlockingDefaultProfile(ctx context.Context, chargerID string, connectorID int) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q not connected", chargerID)
	}
	id := profileIDBlockingDefault
	connID := connectorID
	req := smartcharging.ClearChargingProfileRequest{Id: &id, ConnectorId: &connID}
	var conf smartcharging.ClearChargingProfileConfirmation
	return callAndCheck(ctx, sess, "ClearChargingProfile", req, &conf, func() string { return string(conf.Status) })
}

func (s *Server) SetTxProfile(ctx context.Context, chargerID string, connectorID, transactionID int, limitAmps float64) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q not connected", chargerID)
	}
	profile := types.ChargingProfile{
		ChargingProfileId:      profileIDTxProfile,
		TransactionId:          transactionID,
		StackLevel:             stackLevelTx,
		ChargingProfilePurpose: types.ChargingProfilePurposeTxProfile,
		ChargingProfileKind:    types.ChargingProfileKindAbsolute,
		ChargingSchedule: &types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitAmperes,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: limitAmps},
			},
		},
	}
	req := smartcharging.SetChargingProfileRequest{ConnectorId: connectorID, ChargingProfile: profile}
	var conf smartcharging.SetChargingProfileConfirmation
	return callAndCheck(ctx, sess, "SetChargingProfile", req, &conf, func() string { return string(conf.Status) })
}

func (s *Server) TriggerBootNotification(ctx context.Context, chargerID string) error {
	return s.trigger(ctx, chargerID, remotetrigger.BootNotification, nil)
}

func (s *Server) TriggerStatusNotification(ctx context.Context, chargerID string, connectorID int) error {
	return s.trigger(ctx, chargerID, remotetrigger.StatusNotification, &connectorID)
}

func (s *Server) TriggerMeterValues(ctx context.Context, chargerID string) error {
	return s.trigger(ctx, chargerID, remotetrigger.MeterValues, nil)
}

func (s *Server) trigger(ctx context.Context, chargerID string, message remotetrigger.MessageTrigger, connectorID *int) error {
	sess, ok := s.session(chargerID)
	if !ok {
		return modelerr.New(modelerr.NotFound, "charger %q not connected", chargerID)
	}
	req := remotetrigger.TriggerMessageRequest{RequestedMessage: message, ConnectorId: connectorID}
	var conf remotetrigger.TriggerMessageConfirmation
	return callAndCheck(ctx, sess, "TriggerMessage", req, &conf, func() string { return string(conf.Status) })
}

func callAndCheck(ctx context.Context, sess *Session, action string, req, conf any, status func() string) error {
	if err := sess.Call(ctx, action, req, conf); err != nil {
		return err
	}
	if got := status(); got != "Accepted" {
		return modelerr.New(modelerr.ProtocolError, "%s rejected with status %s", action, got)
	}
	return nil
}
