// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventStoreOrdering(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	var ids []string
	for i := range 5 {
		id, err := store.StoreEvent(ctx, "s1", "stream-a", time.Now(), fmt.Appendf(nil, `{"n":%d}`, i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	// IDs are strictly increasing within the stream.
	assert.Equal(t, "stream-a_0", ids[0])
	assert.Equal(t, "stream-a_4", ids[4])

	replay, err := store.EventsAfter(ctx, "s1", ids[1])
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, "stream-a", replay.StreamID)
	require.Len(t, replay.Messages, 3)
	// Replay preserves emission order with the exact payload bytes.
	for i, msg := range replay.Messages {
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i+2), string(msg))
		assert.Equal(t, ids[i+2], replay.EventIDs[i])
	}

	// After the last event there is nothing to replay, but the ID is known.
	replay, err = store.EventsAfter(ctx, "s1", ids[4])
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Empty(t, replay.Messages)
}

func TestInMemoryEventStoreUnknownID(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	replay, err := store.EventsAfter(ctx, "s1", "missing_0")
	require.NoError(t, err)
	assert.Nil(t, replay)

	replay, err = store.EventsAfter(ctx, "s1", "not-an-event-id")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestInMemoryEventStoreStreamsAreIndependent(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	aID, err := store.StoreEvent(ctx, "s1", "a", time.Now(), []byte("a0"))
	require.NoError(t, err)
	_, err = store.StoreEvent(ctx, "s1", "b", time.Now(), []byte("b0"))
	require.NoError(t, err)
	_, err = store.StoreEvent(ctx, "s1", "a", time.Now(), []byte("a1"))
	require.NoError(t, err)

	replay, err := store.EventsAfter(ctx, "s1", aID)
	require.NoError(t, err)
	require.NotNil(t, replay)
	require.Len(t, replay.Messages, 1)
	assert.Equal(t, "a1", string(replay.Messages[0]))
}

func TestInMemoryEventStoreEviction(t *testing.T) {
	store := NewInMemoryEventStore()
	store.MaxEventsPerStream = 3
	ctx := context.Background()

	var ids []string
	for i := range 5 {
		id, err := store.StoreEvent(ctx, "s1", "a", time.Now(), fmt.Appendf(nil, "e%d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	// Ordinals keep counting despite eviction.
	assert.Equal(t, "a_4", ids[4])

	// The evicted prefix is gone, but the surviving suffix is contiguous.
	replay, err := store.EventsAfter(ctx, "s1", ids[2])
	require.NoError(t, err)
	require.NotNil(t, replay)
	require.Len(t, replay.Messages, 2)
	assert.Equal(t, "e3", string(replay.Messages[0]))
	assert.Equal(t, "e4", string(replay.Messages[1]))
}

func TestInMemoryEventStoreDropSession(t *testing.T) {
	store := NewInMemoryEventStore()
	ctx := context.Background()

	id, err := store.StoreEvent(ctx, "s1", "a", time.Now(), []byte("x"))
	require.NoError(t, err)
	_, err = store.StoreEvent(ctx, "s2", "b", time.Now(), []byte("y"))
	require.NoError(t, err)

	require.NoError(t, store.DropSession(ctx, "s1"))

	replay, err := store.EventsAfter(ctx, "s1", id)
	require.NoError(t, err)
	assert.Nil(t, replay)

	// The other session is untouched.
	id2, err := store.StoreEvent(ctx, "s2", "b", time.Now(), []byte("z"))
	require.NoError(t, err)
	assert.Equal(t, "b_1", id2)
}

func TestParseEventID(t *testing.T) {
	stream, ordinal, ok := parseEventID("uuid-with_underscores_12")
	require.True(t, ok)
	assert.Equal(t, "uuid-with_underscores", stream)
	assert.Equal(t, 12, ordinal)

	for _, bad := range []string{"", "noseparator", "x_-1", "x_abc"} {
		_, _, ok := parseEventID(bad)
		assert.False(t, ok, "parseEventID(%q)", bad)
	}
}
