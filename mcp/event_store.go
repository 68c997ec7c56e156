// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// An EventStore buffers the events of SSE streams so that a client that
// reconnects with a Last-Event-ID can be caught up on what it missed.
//
// Events on one stream have a total, strictly increasing order, and replay
// preserves that order with the exact payload bytes originally emitted.
// Implementations may evict old events; EventsAfter always returns a
// contiguous suffix of a stream.
type EventStore interface {
	// StoreEvent appends a payload to the stream and returns the new event's
	// ID. Appends to one stream are serialized by the caller's write path;
	// implementations must serialize them too.
	StoreEvent(ctx context.Context, sessionID, streamID string, timestamp time.Time, payload []byte) (eventID string, err error)
	// EventsAfter returns all events of lastEventID's stream with a strictly
	// later ordinal, in emission order, or nil if the event ID is unknown.
	EventsAfter(ctx context.Context, sessionID, lastEventID string) (*EventReplay, error)
	// DropSession discards all events of a session. Called on session
	// teardown.
	DropSession(ctx context.Context, sessionID string) error
}

// An EventReplay is the result of [EventStore.EventsAfter].
type EventReplay struct {
	// StreamID of the replayed stream.
	StreamID string
	// EventIDs and Messages are parallel: Messages[i] was stored with ID
	// EventIDs[i].
	EventIDs []string
	Messages [][]byte
}

// formatEventID combines a stream ID and an ordinal into the flat event-ID
// string attached to SSE events. Consumers treat it as opaque.
func formatEventID(streamID string, ordinal int) string {
	return fmt.Sprintf("%s_%d", streamID, ordinal)
}

// parseEventID splits an event ID produced by formatEventID.
func parseEventID(eventID string) (streamID string, ordinal int, ok bool) {
	i := strings.LastIndexByte(eventID, '_')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(eventID[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return eventID[:i], n, true
}

// An InMemoryEventStore is the reference [EventStore].
type InMemoryEventStore struct {
	// MaxEventsPerStream bounds each stream's buffer; older events are
	// evicted first. Zero means unbounded.
	MaxEventsPerStream int

	mu      sync.Mutex
	streams map[string]*memoryStream // keyed by sessionID + "\x00" + streamID
}

type memoryStream struct {
	sessionID string
	streamID  string
	first     int // ordinal of events[0]
	events    [][]byte
}

// NewInMemoryEventStore returns an empty InMemoryEventStore.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{streams: make(map[string]*memoryStream)}
}

func streamKey(sessionID, streamID string) string {
	return sessionID + "\x00" + streamID
}

// StoreEvent implements the [EventStore] interface.
func (s *InMemoryEventStore) StoreEvent(ctx context.Context, sessionID, streamID string, _ time.Time, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := streamKey(sessionID, streamID)
	st := s.streams[key]
	if st == nil {
		st = &memoryStream{sessionID: sessionID, streamID: streamID}
		s.streams[key] = st
	}
	st.events = append(st.events, append([]byte(nil), payload...))
	if s.MaxEventsPerStream > 0 && len(st.events) > s.MaxEventsPerStream {
		evict := len(st.events) - s.MaxEventsPerStream
		st.events = st.events[evict:]
		st.first += evict
	}
	return formatEventID(streamID, st.first+len(st.events)-1), nil
}

// EventsAfter implements the [EventStore] interface.
func (s *InMemoryEventStore) EventsAfter(ctx context.Context, sessionID, lastEventID string) (*EventReplay, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID, ordinal, ok := parseEventID(lastEventID)
	if !ok {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.streams[streamKey(sessionID, streamID)]
	if st == nil || ordinal >= st.first+len(st.events) {
		return nil, nil
	}
	replay := &EventReplay{StreamID: streamID}
	start := ordinal + 1 - st.first
	if start < 0 {
		start = 0
	}
	for i := start; i < len(st.events); i++ {
		replay.EventIDs = append(replay.EventIDs, formatEventID(streamID, st.first+i))
		replay.Messages = append(replay.Messages, st.events[i])
	}
	return replay, nil
}

// DropSession implements the [EventStore] interface.
func (s *InMemoryEventStore) DropSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, st := range s.streams {
		if st.sessionID == sessionID {
			delete(s.streams, key)
		}
	}
	return nil
}

// A RedisEventStore is an [EventStore] backed by Redis lists, for servers
// whose sessions may be resumed from another process.
type RedisEventStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisEventStore returns an EventStore using rdb. Keys are prefixed
// with prefix ("mcp:" if empty) and expire after ttl (no expiry if zero).
func NewRedisEventStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisEventStore {
	if prefix == "" {
		prefix = "mcp:"
	}
	return &RedisEventStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisEventStore) key(sessionID, streamID string) string {
	return s.prefix + "events:" + sessionID + ":" + streamID
}

// StoreEvent implements the [EventStore] interface. The list index is the
// event ordinal.
func (s *RedisEventStore) StoreEvent(ctx context.Context, sessionID, streamID string, _ time.Time, payload []byte) (string, error) {
	key := s.key(sessionID, streamID)
	n, err := s.rdb.RPush(ctx, key, payload).Result()
	if err != nil {
		return "", err
	}
	if s.ttl > 0 {
		s.rdb.Expire(ctx, key, s.ttl)
	}
	return formatEventID(streamID, int(n-1)), nil
}

// EventsAfter implements the [EventStore] interface.
func (s *RedisEventStore) EventsAfter(ctx context.Context, sessionID, lastEventID string) (*EventReplay, error) {
	streamID, ordinal, ok := parseEventID(lastEventID)
	if !ok {
		return nil, nil
	}
	key := s.key(sessionID, streamID)
	size, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if int64(ordinal) >= size {
		return nil, nil
	}
	values, err := s.rdb.LRange(ctx, key, int64(ordinal)+1, -1).Result()
	if err != nil {
		return nil, err
	}
	replay := &EventReplay{StreamID: streamID}
	for i, v := range values {
		replay.EventIDs = append(replay.EventIDs, formatEventID(streamID, ordinal+1+i))
		replay.Messages = append(replay.Messages, []byte(v))
	}
	return replay, nil
}

// DropSession implements the [EventStore] interface.
func (s *RedisEventStore) DropSession(ctx context.Context, sessionID string) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"events:"+sessionID+":*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
