package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	path := []State{Idle, Arming, Recording, Stopping, Finalizing, Complete}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, canTransition(path[i], path[i+1]), "%s -> %s should be valid", path[i], path[i+1])
	}
}

func TestCanTransition_ArmingMayFailDirectlyToStopping(t *testing.T) {
	assert.True(t, canTransition(Arming, Stopping))
}

func TestCanTransition_AnyNonCompleteStateMayFail(t *testing.T) {
	for _, s := range []State{Idle, Arming, Recording, Stopping, Finalizing} {
		assert.True(t, canTransition(s, Failed), "%s -> Failed should always be valid", s)
	}
}

func TestCanTransition_CompleteCannotFail(t *testing.T) {
	assert.False(t, canTransition(Complete, Failed))
}

func TestCanTransition_TerminalStatesMayArmAFreshSession(t *testing.T) {
	assert.True(t, canTransition(Complete, Arming))
	assert.True(t, canTransition(Failed, Arming))
}

func TestCanTransition_RejectsSkippingStates(t *testing.T) {
	assert.False(t, canTransition(Idle, Recording))
	assert.False(t, canTransition(Recording, Complete))
	assert.False(t, canTransition(Recording, Finalizing))
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, Complete.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Recording.Terminal())
}
