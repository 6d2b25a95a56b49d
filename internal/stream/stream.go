package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dropradar/pkg/logger"
)

// Envelope is the wire frame pushed to streaming clients: a kind tag plus
// the JSON payload.
type Envelope struct {
	Kind      string      `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Stream fans domain notifications out to connected WebSocket/SSE clients.
// Sends are non-blocking; a client that cannot keep up misses frames rather
// than backpressuring the reconciler.
type Stream struct {
	clients    map[chan []byte]bool
	mu         sync.RWMutex
	buffer     [][]byte
	bufferSize int
	logger     *logger.Logger
}

// NewStream creates a hub with the given per-client channel capacity.
func NewStream(bufferSize int, log *logger.Logger) *Stream {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Stream{
		clients:    make(map[chan []byte]bool),
		buffer:     make([][]byte, 0, bufferSize),
		bufferSize: bufferSize,
		logger:     log,
	}
}

// Publish serializes one notification and delivers it to every connected
// client. With no clients connected the frame is buffered for replay to the
// next subscriber.
func (s *Stream) Publish(kind string, payload interface{}) {
	if s == nil {
		return
	}

	data, err := json.Marshal(Envelope{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Error("failed to marshal %s frame for streaming: %v", kind, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) == 0 {
		if len(s.buffer) < s.bufferSize {
			s.buffer = append(s.buffer, data)
		}
		return
	}

	for clientChan := range s.clients {
		select {
		case clientChan <- data:
		default:
			s.logger.Debug("client channel full, dropping %s frame", kind)
		}
	}
}

// Subscribe registers a client channel and replays buffered frames into it.
// The returned cleanup must be called when the client disconnects.
func (s *Stream) Subscribe() (chan []byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientChan := make(chan []byte, s.bufferSize)

	backlog := make([][]byte, len(s.buffer))
	copy(backlog, s.buffer)
	s.buffer = s.buffer[:0]

	go func() {
		for _, frame := range backlog {
			select {
			case clientChan <- frame:
			case <-time.After(time.Second):
				return
			}
		}
	}()

	s.clients[clientChan] = true

	cleanup := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.clients[clientChan]; ok {
			delete(s.clients, clientChan)
			close(clientChan)
		}
	}

	return clientChan, cleanup
}

// ClientCount returns the number of connected clients.
func (s *Stream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// StartBackgroundCleanup trims the replay buffer while no clients are
// connected so a quiet deployment does not hoard frames.
func (s *Stream) StartBackgroundCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if len(s.clients) == 0 && len(s.buffer) > s.bufferSize/2 {
				s.buffer = s.buffer[len(s.buffer)/2:]
			}
			s.mu.Unlock()
		}
	}
}
