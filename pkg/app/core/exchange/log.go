package exchange

import "sync"

// Observer is called synchronously in commit order after the engine lock is released.
// It may read from the engine but must not call operations that change it.
// A slow observer delays the next commit.
type Observer func(Record)

// EventLog is the append-only record of committed events.
type EventLog struct {
	pub       sync.Mutex // held by Engine.apply from commit through publication
	mu        sync.RWMutex
	records   []Record
	nextSeq   uint64
	observers map[int]Observer
	nextObs   int
}

func NewEventLog() *EventLog {
	return &EventLog{nextSeq: 1, observers: make(map[int]Observer)}
}

func (l *EventLog) load(records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records[:0], records...)
	if n := len(records); n > 0 {
		l.nextSeq = records[n-1].Seq + 1
	}
}

// peekSeq is the sequence number the next appended record will get.
func (l *EventLog) peekSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq
}

// append stores recs and returns the observers registered at that point.
// Caller must hold pub until the records are published.
func (l *EventLog) append(recs []Record) []Observer {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, recs...)
	if n := len(recs); n > 0 {
		l.nextSeq = recs[n-1].Seq + 1
	}
	obs := make([]Observer, 0, len(l.observers))
	for i := 0; i < l.nextObs; i++ {
		if o, ok := l.observers[i]; ok {
			obs = append(obs, o)
		}
	}
	return obs
}

func publish(recs []Record, obs []Observer) {
	for _, r := range recs {
		for _, o := range obs {
			o(r)
		}
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (l *EventLog) Subscribe(o Observer) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextObs
	l.nextObs++
	l.observers[id] = o
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

// Since returns up to limit records with Seq >= from. limit <= 0 means no limit.
func (l *EventLog) Since(from uint64, limit int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Record
	for _, r := range l.records {
		if r.Seq < from {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
