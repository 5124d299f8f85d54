package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryStartRun(t *testing.T) {
	sc := &ServerContext{}

	assert.False(t, sc.Running())
	release, ok := sc.TryStartRun()
	require.True(t, ok)
	assert.True(t, sc.Running())

	_, ok = sc.TryStartRun()
	assert.False(t, ok, "a second run is rejected while the first holds the slot")

	release()
	release()
	assert.False(t, sc.Running())
	release2, ok := sc.TryStartRun()
	require.True(t, ok)
	release2()
}
