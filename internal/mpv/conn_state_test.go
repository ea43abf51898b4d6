package mpv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidTransition(t *testing.T) {
	allowed := map[[2]ConnState]bool{
		{Disconnected, Connecting}: true,
		{Connecting, Connected}:    true,
		{Connecting, Disconnected}: true,
		{Connected, Disconnected}:  true,
		{Disconnected, Closed}:     true,
		{Connecting, Closed}:       true,
		{Connected, Closed}:        true,
	}
	states := []ConnState{Disconnected, Connecting, Connected, Closed}
	for _, from := range states {
		for _, to := range states {
			assert.Equal(t, allowed[[2]ConnState{from, to}], validTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", ConnState(42).String())
}
