package events

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/types"
)

const DEFAULT_BUFFER_SIZE = 64

type Channels []chan *types.TransferChanged

// Store array of channels by topic
type EventBus struct {
	mu         sync.RWMutex
	bufferSize int
	channels   map[string]Channels
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = DEFAULT_BUFFER_SIZE
	}
	return &EventBus{
		bufferSize: bufferSize,
		channels:   make(map[string]Channels),
	}
}

// Publish delivers the event to every subscriber of its topic and of TOPIC_ALL.
// A subscriber whose buffer is full misses the event; it can resync from a snapshot.
func (eb *EventBus) Publish(event *types.TransferChanged) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, topic := range []string{event.SecretHash, TOPIC_ALL} {
		for _, channel := range eb.channels[topic] {
			select {
			case channel <- event:
			default:
				log.Warn().Str("topic", topic).Str("secretHash", event.SecretHash).
					Msg("[EventBus] [Publish] subscriber buffer full, event dropped")
			}
		}
	}
}

func (eb *EventBus) Subscribe(topic string) <-chan *types.TransferChanged {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	receiver := make(chan *types.TransferChanged, eb.bufferSize)
	eb.channels[topic] = append(eb.channels[topic], receiver)
	return receiver
}

func (eb *EventBus) Unsubscribe(topic string, receiver <-chan *types.TransferChanged) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	channels := eb.channels[topic]
	for i, channel := range channels {
		if channel == receiver {
			close(channel)
			eb.channels[topic] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	if len(eb.channels[topic]) == 0 {
		delete(eb.channels, topic)
	}
}

func (eb *EventBus) SubscriberCount(topic string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.channels[topic])
}
