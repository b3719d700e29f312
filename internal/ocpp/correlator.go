package ocpp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evbalanz/balanzd/internal/modelerr"
)

// correlator serializes outbound calls for one charger (one in flight at a
// time, per spec §5) and matches CallResult/CallError replies to the call
// that produced them by unique_id.
type correlator struct {
	mu      sync.Mutex // held for the duration of one outbound call
	pending struct {
		sync.Mutex
		id string
		ch chan replyOrError
	}
	replyTimeout time.Duration
	send         func([]byte) error
}

type replyOrError struct {
	payload json.RawMessage
	err     error
}

func newCorrelator(replyTimeout time.Duration, send func([]byte) error) *correlator {
	return &correlator{replyTimeout: replyTimeout, send: send}
}

// Call sends an outbound OCPP call and blocks until the matching reply
// arrives, ctx is cancelled, or the reply timeout elapses.
func (c *correlator) Call(ctx context.Context, action string, payload any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	uniqueID := uuid.NewString()
	frame, err := encodeCall(uniqueID, action, payload)
	if err != nil {
		return modelerr.Wrap(modelerr.ProtocolError, err, "encode outbound call")
	}

	ch := make(chan replyOrError, 1)
	c.pending.Lock()
	c.pending.id = uniqueID
	c.pending.ch = ch
	c.pending.Unlock()

	if err := c.send(frame); err != nil {
		c.clearPending(uniqueID)
		return modelerr.Wrap(modelerr.ProtocolError, err, "send outbound call")
	}

	timeout := time.NewTimer(c.replyTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		c.clearPending(uniqueID)
		return ctx.Err()
	case <-timeout.C:
		c.clearPending(uniqueID)
		return modelerr.New(modelerr.ProtocolError, "timed out waiting for reply to %s", action)
	case result := <-ch:
		if result.err != nil {
			return result.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(result.payload, out); err != nil {
			return modelerr.Wrap(modelerr.ProtocolError, err, "decode reply to %s", action)
		}
		return nil
	}
}

// Resolve is invoked by the session's read loop when a CallResult or
// CallError frame arrives; it wakes the pending Call, if any, matching
// uniqueID.
func (c *correlator) Resolve(uniqueID string, payload json.RawMessage, callErr error) bool {
	c.pending.Lock()
	defer c.pending.Unlock()
	if c.pending.id != uniqueID || c.pending.ch == nil {
		return false
	}
	ch := c.pending.ch
	c.pending.id = ""
	c.pending.ch = nil
	ch <- replyOrError{payload: payload, err: callErr}
	return true
}

func (c *correlator) clearPending(uniqueID string) {
	c.pending.Lock()
	defer c.pending.Unlock()
	if c.pending.id == uniqueID {
		c.pending.id = ""
		c.pending.ch = nil
	}
}
