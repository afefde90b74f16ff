package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/teamprint-backend/pkg/enums"
)

type decoderFunc func(payload json.RawMessage) (any, error)

type schemaKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry is the consumer-side view: it decodes envelope data by
// event type and envelope version.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[schemaKey]decoderFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[schemaKey]decoderFunc)}
}

// NewOrderDecoders covers every schema published on the orders topic.
func NewOrderDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	for _, s := range orderSchemas {
		newPayload := s.newPayload
		reg.Register(s.eventType, s.version, func(data json.RawMessage) (any, error) {
			out := newPayload()
			if err := json.Unmarshal(data, out); err != nil {
				return nil, err
			}
			return out, nil
		})
	}
	return reg
}

// Register replaces any decoder already stored for the pair.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode decoderFunc) {
	r.mu.Lock()
	r.decoders[schemaKey{eventType, version}] = decode
	r.mu.Unlock()
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	decode, ok := r.decoders[schemaKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: no decoder for %s v%d", eventType, version)
	}
	return decode(payload)
}
