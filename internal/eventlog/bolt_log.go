package eventlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpcoordinator/pkg/logging"
)

// BoltLog is a Log backed by a single bbolt file, used when no NATS
// endpoint is configured (local/dev deployments). Each stream maps to its
// own bucket keyed by an 8-byte big-endian sequence number.
type BoltLog struct {
	db *bolt.DB

	mu          sync.Mutex
	subscribers map[string][]chan Event
}

// NewBoltLog opens (creating if needed) the bbolt file at path.
func NewBoltLog(path string) (*BoltLog, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	return &BoltLog{
		db:          db,
		subscribers: make(map[string][]chan Event),
	}, nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func (l *BoltLog) Append(stream string, ev Event) (uint64, error) {
	var seq uint64

	err := l.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(stream))
		if err != nil {
			return err
		}

		seq = b.Sequence() + 1
		if err := b.SetSequence(seq); err != nil {
			return err
		}

		ev.Seq = seq
		ev.Stream = stream
		if ev.Time.IsZero() {
			ev.Time = time.Now()
		}
		ev.Summary = renderSummary(ev)

		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		return b.Put(seqKey(seq), payload)
	})
	if err != nil {
		return 0, err
	}

	ev.Seq = seq
	ev.Stream = stream
	l.notify(stream, ev)

	logging.Debug("eventlog", "appended %s seq=%d to stream %s", ev.Kind, seq, stream)
	return seq, nil
}

func (l *BoltLog) notify(stream string, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subscribers[stream] {
		select {
		case ch <- ev:
		default:
			logging.Warn("eventlog", "subscriber channel full for stream %s, dropping event seq=%d", stream, ev.Seq)
		}
	}
}

func (l *BoltLog) Subscribe(ctx context.Context, stream string) (<-chan Event, error) {
	ch := make(chan Event, 64)

	l.mu.Lock()
	l.subscribers[stream] = append(l.subscribers[stream], ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		subs := l.subscribers[stream]
		for i, c := range subs {
			if c == ch {
				l.subscribers[stream] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func (l *BoltLog) ReplayFrom(stream string, fromSeq uint64) ([]Event, error) {
	var events []Event

	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(stream))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Seek(seqKey(fromSeq)); k != nil; k, v = c.Next() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})

	return events, err
}

func (l *BoltLog) Close() error {
	return l.db.Close()
}
