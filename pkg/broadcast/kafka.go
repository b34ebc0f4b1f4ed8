package broadcast

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
)

const maxBatch = 100

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// KafkaSink exports committed exchange events to a Kafka topic.
// Messages are keyed by event kind and carry the record's JSON encoding.
// Observe never blocks: when the buffer is full the record is dropped and counted,
// and consumers can backfill from the event log by sequence number.
type KafkaSink struct {
	w       MessageWriter
	ch      chan exchange.Record
	log     *zap.SugaredLogger
	dropped atomic.Uint64
	done    chan struct{}
}

func NewKafkaSink(w MessageWriter, log *zap.SugaredLogger, buffer int) *KafkaSink {
	return &KafkaSink{
		w:    w,
		ch:   make(chan exchange.Record, buffer),
		log:  log,
		done: make(chan struct{}),
	}
}

// Observe is an exchange.Observer.
func (s *KafkaSink) Observe(r exchange.Record) {
	select {
	case s.ch <- r:
	default:
		n := s.dropped.Add(1)
		s.log.Warnw("kafka_event_dropped", "seq", r.Seq, "kind", r.Event.Kind(), "dropped_total", n)
	}
}

func (s *KafkaSink) Dropped() uint64 { return s.dropped.Load() }

// Done is closed once Run has flushed and closed the writer.
func (s *KafkaSink) Done() <-chan struct{} { return s.done }

// Run writes buffered records until ctx is cancelled, then flushes what is left and closes the writer.
func (s *KafkaSink) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			for batch := s.drain(nil); len(batch) > 0; batch = s.drain(nil) {
				s.write(flushCtx, batch)
			}
			cancel()
			if err := s.w.Close(); err != nil {
				s.log.Warnw("kafka_close_failed", "err", err)
			}
			return
		case r := <-s.ch:
			s.write(ctx, s.drain([]exchange.Record{r}))
		}
	}
}

// drain appends whatever is already buffered, up to maxBatch records.
func (s *KafkaSink) drain(batch []exchange.Record) []exchange.Record {
	for len(batch) < maxBatch {
		select {
		case r := <-s.ch:
			batch = append(batch, r)
		default:
			return batch
		}
	}
	return batch
}

func (s *KafkaSink) write(ctx context.Context, batch []exchange.Record) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, r := range batch {
		value, err := json.Marshal(r)
		if err != nil {
			s.log.Errorw("kafka_encode_failed", "seq", r.Seq, "err", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(r.Event.Kind()),
			Value:   value,
			Headers: []kafka.Header{{Key: "seq", Value: []byte(strconv.FormatUint(r.Seq, 10))}},
			Time:    r.Time,
		})
	}
	if len(msgs) == 0 {
		return
	}
	if err := s.w.WriteMessages(ctx, msgs...); err != nil {
		s.log.Errorw("kafka_write_failed",
			"first_seq", batch[0].Seq,
			"last_seq", batch[len(batch)-1].Seq,
			"err", err)
		return
	}
	s.log.Debugw("kafka_events_written", "count", len(msgs), "last_seq", batch[len(batch)-1].Seq)
}
