// Package eventbus provides the in-process publish/subscribe mechanism
// used to announce task, collaboration, and cluster lifecycle events.
// Subscribers register by exact name, `*`-wildcard, or a `regex:`-prefixed
// pattern; delivery runs on an independent goroutine per subscriber with no
// cross-subscriber ordering guarantee.
package eventbus

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Name    string
	Payload interface{}
	Time    time.Time
}

type subscriber struct {
	id      uint64
	pattern string
	match   func(name string) bool
	handler func(Event)
}

// Bus is a process-local pub/sub hub. The zero value is not usable; use New.
type Bus struct {
	mu        sync.RWMutex
	subs      []*subscriber
	nextID    uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers payload to every subscriber whose pattern matches name.
// Each matching handler runs in its own goroutine so a slow or panicking
// subscriber cannot block publication or other subscribers.
func (b *Bus) Publish(name string, payload interface{}) {
	evt := Event{Name: name, Payload: payload, Time: time.Now()}

	b.mu.RLock()
	matched := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.match(name) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		handler := s.handler
		go func() {
			defer func() { _ = recover() }()
			handler(evt)
		}()
	}
}

// Subscribe registers handler for every event whose name matches pattern.
// Pattern forms:
//   - exact: "task:completed"
//   - wildcard: "task:*" matches any name with that prefix
//   - regex: "regex:^task:(completed|failed)$" compiles the remainder as a
//     regular expression
//
// The returned func removes the subscription; it is safe to call more than
// once and safe to call concurrently with Publish.
func (b *Bus) Subscribe(pattern string, handler func(Event)) (unsubscribe func()) {
	match := compileMatcher(pattern)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscriber{id: id, pattern: pattern, match: match, handler: handler}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}
}

func compileMatcher(pattern string) func(name string) bool {
	switch {
	case strings.HasPrefix(pattern, "regex:"):
		expr := strings.TrimPrefix(pattern, "regex:")
		re, err := regexp.Compile(expr)
		if err != nil {
			// An unparsable regex pattern matches nothing rather than
			// panicking at subscribe time.
			return func(name string) bool { return false }
		}
		return re.MatchString

	case strings.HasSuffix(pattern, "*"):
		prefix := strings.TrimSuffix(pattern, "*")
		return func(name string) bool { return strings.HasPrefix(name, prefix) }

	default:
		return func(name string) bool { return name == pattern }
	}
}
