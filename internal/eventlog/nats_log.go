package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"mcpcoordinator/pkg/logging"
)

// NATSLog is a Log backed by a NATS JetStream stream per coordination
// stream name. Each domain stream ("agents", "tasks", "sessions", ...) maps
// to one JetStream stream so retention and replay can be tuned per concern.
type NATSLog struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	ctx context.Context

	mu       sync.Mutex
	streams  map[string]jetstream.Stream
}

// NewNATSLog connects to the given NATS URL and prepares the JetStream
// context. Streams are created lazily on first Append/Subscribe.
func NewNATSLog(ctx context.Context, url string) (*NATSLog, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	return &NATSLog{
		nc:      nc,
		js:      js,
		ctx:     ctx,
		streams: make(map[string]jetstream.Stream),
	}, nil
}

func subjectFor(stream string) string {
	return "coordinator.events." + stream
}

func (l *NATSLog) streamFor(stream string) (jetstream.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.streams[stream]; ok {
		return s, nil
	}

	name := "EVENTS_" + stream
	s, err := l.js.CreateOrUpdateStream(l.ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subjectFor(stream)},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", name, err)
	}

	l.streams[stream] = s
	return s, nil
}

func (l *NATSLog) Append(stream string, ev Event) (uint64, error) {
	s, err := l.streamFor(stream)
	if err != nil {
		return 0, err
	}

	ev.Stream = stream
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	ev.Summary = renderSummary(ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	ack, err := l.js.Publish(l.ctx, subjectFor(stream), payload)
	if err != nil {
		return 0, fmt.Errorf("publish event: %w", err)
	}

	_ = s
	logging.Debug("eventlog", "appended %s seq=%d to stream %s", ev.Kind, ack.Sequence, stream)
	return ack.Sequence, nil
}

func (l *NATSLog) Subscribe(ctx context.Context, stream string) (<-chan Event, error) {
	s, err := l.streamFor(stream)
	if err != nil {
		return nil, err
	}

	cons, err := s.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	out := make(chan Event, 64)
	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			logging.Error("eventlog", err, "decode event on stream %s", stream)
			return
		}
		meta, err := msg.Metadata()
		if err == nil {
			ev.Seq = meta.Sequence.Stream
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consume: %w", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Stop()
		close(out)
	}()

	return out, nil
}

func (l *NATSLog) ReplayFrom(stream string, fromSeq uint64) ([]Event, error) {
	s, err := l.streamFor(stream)
	if err != nil {
		return nil, err
	}

	cons, err := s.CreateOrUpdateConsumer(l.ctx, jetstream.ConsumerConfig{
		DeliverPolicy: jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:   fromSeq,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create replay consumer: %w", err)
	}

	var events []Event
	batch, err := cons.FetchNoWait(10000)
	if err != nil {
		return nil, fmt.Errorf("fetch replay batch: %w", err)
	}

	for msg := range batch.Messages() {
		var ev Event
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			logging.Error("eventlog", err, "decode replay event on stream %s", stream)
			continue
		}
		meta, err := msg.Metadata()
		if err == nil {
			ev.Seq = meta.Sequence.Stream
		}
		if ev.Seq >= fromSeq {
			events = append(events, ev)
		}
	}

	return events, batch.Error()
}

func (l *NATSLog) Close() error {
	l.nc.Close()
	return nil
}
