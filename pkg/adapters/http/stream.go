package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/espalier/pkg/domain"
)

// StreamManager fans task events out to the SSE clients of each instance.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // InstanceID -> Set of Channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(instanceID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[instanceID]; !ok {
		sm.subscribers[instanceID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[instanceID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[instanceID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, instanceID)
			}
		}
	}
}

// Broadcast sends msg to every subscriber of the instance. Slow clients
// miss messages instead of blocking the sender.
func (sm *StreamManager) Broadcast(instanceID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[instanceID] {
		select {
		case ch <- msg:
		default:
			slog.Warn("SSE: Client buffer full, dropping message", "instance_id", instanceID)
		}
	}
}

// Hooks broadcasts every submitted task event as JSON.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskSubmitted: func(ctx context.Context, ev *domain.TaskEvent) {
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			sm.Broadcast(ev.InstanceID, string(data))
		},
	}
}

func writeEvent(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
