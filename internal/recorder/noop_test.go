package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Recorder = (*NoopRecorder)(nil)

func TestNoopRecorder(t *testing.T) {
	r := NewNoopRecorder()

	require.NoError(t, r.RecordTransition(Event{}))
	events, err := r.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, r.Close())
}
