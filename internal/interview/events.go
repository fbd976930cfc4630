package interview

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
)

type EventType string

const (
	EventPhase       EventType = "phase"
	EventQuestion    EventType = "question"
	EventSpeech      EventType = "speech"
	EventTranscript  EventType = "transcript"
	EventAnalysis    EventType = "analysis"
	EventTick        EventType = "timer"
	EventTimeExpired EventType = "time_expired"
	EventDevice      EventType = "device"
	EventError       EventType = "error"
	EventNotice      EventType = "notice"
)

// Event carries a state snapshot taken right after the change it reports.
type Event struct {
	Type EventType `json:"type"`
	// Phase is the phase at the time of the change.
	Phase    Phase     `json:"phase"`
	Message  string    `json:"message,omitempty"`
	Snapshot Snapshot  `json:"state"`
	At       time.Time `json:"at"`
}

// Publisher delivers events to listeners. Publish must not block for long.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Broadcaster fans events out to in-process subscribers. Slow subscribers
// lose events instead of blocking the interview.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	log    *logrus.Entry
}

func NewBroadcaster(log logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event), log: logger.Component(log, "events")}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.WithFields(logrus.Fields{"subscriber": id, "type": ev.Type}).Warn("subscriber buffer full, event dropped")
		}
	}
	return nil
}

func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// RedisPublisher mirrors events to the "interview:<id>:events" channel.
type RedisPublisher struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func NewRedisPublisher(rdb redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, timeout: 2 * time.Second}
}

func ChannelName(interviewID string) string {
	if interviewID == "" {
		interviewID = "none"
	}
	return "interview:" + interviewID + ":events"
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.rdb.Publish(ctx, ChannelName(ev.Snapshot.InterviewID), payload).Err()
}

// MultiPublisher publishes to every target and returns the first error.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
