package mq

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

const memoryQueueSize = 64

// Memory is an in-process backend for development and tests. Each channel is
// a buffered queue. A failed message goes back to its queue until it runs out
// of attempts, then to the dead-letter queue. Full queues drop it.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan Message
	seq    int
	closed bool
	done   chan struct{}
}

func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan Message), done: make(chan struct{})}
}

func (m *Memory) queue(channel string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("memory mq closed")
	}
	q, ok := m.queues[channel]
	if !ok {
		q = make(chan Message, memoryQueueSize)
		m.queues[channel] = q
	}
	return q, nil
}

func (m *Memory) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.seq++
	id := strconv.Itoa(m.seq)
	m.mu.Unlock()

	msg := Message{ID: id, Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case q <- msg:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.done:
		return "", errors.New("memory mq closed")
	}
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("memory channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case msg := <-q:
			if err := handler(ctx, msg); err != nil {
				m.requeue(channel, q, msg)
			}
		}
	}
}

func (m *Memory) requeue(channel string, q chan Message, msg Message) {
	next, ok := msg.retried()
	if !ok {
		dead, err := m.queue(DeadLetter(channel))
		if err != nil {
			return
		}
		q = dead
	}
	select {
	case q <- next:
	default:
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
