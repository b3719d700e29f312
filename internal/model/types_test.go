package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePriorityFallsBackToChargerPriority(t *testing.T) {
	conn := &Connector{}
	assert.Equal(t, 2, conn.EffectivePriority(2))
}

func TestEffectivePriorityPrefersTransactionOverride(t *testing.T) {
	override := 5
	conn := &Connector{Transaction: &Transaction{Priority: &override}}
	assert.Equal(t, 5, conn.EffectivePriority(2))
}

func TestEffectivePriorityIgnoresUnsetTransactionOverride(t *testing.T) {
	conn := &Connector{Transaction: &Transaction{}}
	assert.Equal(t, 2, conn.EffectivePriority(2))
}
