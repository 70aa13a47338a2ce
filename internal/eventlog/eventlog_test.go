package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndRecent(t *testing.T) {
	log, err := Open(":memory:")
	require.NoError(t, err)
	defer log.Close()

	now := time.Now()
	require.NoError(t, log.Record(now, "auth", "User authenticated: alice"))
	require.NoError(t, log.Record(now, "broadcast", "alice: hello"))
	require.NoError(t, log.Record(now, "leave", "alice left the chat"))

	events, err := log.Recent(2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Newest first.
	require.Equal(t, "leave", events[0].Kind)
	require.Equal(t, "broadcast", events[1].Kind)
}

func TestRecentEmpty(t *testing.T) {
	log, err := Open(":memory:")
	require.NoError(t, err)
	defer log.Close()

	events, err := log.Recent(10)
	require.NoError(t, err)
	require.Empty(t, events)
}
