package api

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/pv/sortmachine-go/internal/output"
	"github.com/pv/sortmachine-go/internal/sorter"
)

// Message описывает сообщение WebSocket-потока событий.
// Type: snapshot при подключении, далее reset и swap.
type Message struct {
	Type      string       `json:"type"`
	Seq       int64        `json:"seq,omitempty"`
	Cycle     int          `json:"cycle"`
	Algorithm string       `json:"algorithm,omitempty"`
	Data      []int        `json:"data,omitempty"`
	Swap      *sorter.Swap `json:"swap,omitempty"`
}

// EventStreamer повторяет у себя позиционную модель буфера и рассылает кадры по WebSocket.
// Реализует output.Client, кадры ожидания не рассылаются.
type EventStreamer struct {
	mu        sync.RWMutex
	clients   map[*wsClient]struct{}
	seq       int64
	cycle     int
	algorithm string
	data      []int
}

// NewEventStreamer создаёт пустой стример.
func NewEventStreamer() *EventStreamer {
	return &EventStreamer{clients: map[*wsClient]struct{}{}}
}

func (s *EventStreamer) Send(_ context.Context, frame output.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Kind {
	case output.FrameReset:
		s.data = append(s.data[:0], frame.Data...)
		s.algorithm = frame.Algorithm
	case output.FrameSwap:
		if frame.Swap == nil {
			return fmt.Errorf("streamer: swap frame %d without swap", frame.Seq)
		}
		a, b := frame.Swap.A, frame.Swap.B
		if a < 0 || b < 0 || a >= len(s.data) || b >= len(s.data) {
			return fmt.Errorf("streamer: swap %s out of range %d", frame.Swap, len(s.data))
		}
		s.data[a], s.data[b] = s.data[b], s.data[a]
	default:
		return nil
	}
	s.seq = frame.Seq
	s.cycle = frame.Cycle

	s.broadcastLocked(Message{
		Type:      string(frame.Kind),
		Seq:       frame.Seq,
		Cycle:     frame.Cycle,
		Algorithm: frame.Algorithm,
		Data:      frame.Data,
		Swap:      frame.Swap,
	})
	return nil
}

// Snapshot возвращает текущее состояние модели.
func (s *EventStreamer) Snapshot() Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Message{
		Type:      "snapshot",
		Seq:       s.seq,
		Cycle:     s.cycle,
		Algorithm: s.algorithm,
		Data:      append([]int(nil), s.data...),
	}
}

// Clients возвращает число подключённых клиентов.
func (s *EventStreamer) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeWS обрабатывает подключение клиента WebSocket.
func (s *EventStreamer) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	conn, rw, err := websocketUpgrade(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client := newWSClient(conn, rw)
	// snapshot уходит до регистрации, иначе кадры могут обогнать его
	s.mu.Lock()
	snapshot := Message{
		Type:      "snapshot",
		Seq:       s.seq,
		Cycle:     s.cycle,
		Algorithm: s.algorithm,
		Data:      s.data,
	}
	err = client.writeJSON(snapshot)
	if err == nil {
		s.clients[client] = struct{}{}
	}
	s.mu.Unlock()
	if err != nil {
		client.close()
		return
	}
	logDebugf("[ws] client connected: %s", r.RemoteAddr)

	go client.writePump(func() {
		s.removeClient(client)
	})
}

func (s *EventStreamer) removeClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *EventStreamer) broadcastLocked(msg Message) {
	if len(s.clients) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// Клиент не успевает читать — отрубаем.
			delete(s.clients, c)
			go c.close()
		}
	}
}

// --- WebSocket utils (минимальная реализация только для server-push) ---

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func websocketUpgrade(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.ReadWriter, error) {
	if !headerContains(r.Header, "Connection", "Upgrade") || !headerContains(r.Header, "Upgrade", "websocket") {
		return nil, nil, errors.New("upgrade request expected")
	}
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return nil, nil, errors.New("missing Sec-WebSocket-Key")
	}
	accept := computeAcceptKey(key)

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http hijacking not supported")
	}
	conn, rw, err := hijacker.Hijack()
	if err != nil {
		return nil, nil, err
	}
	if rw == nil {
		rw = bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	}

	response := fmt.Sprintf("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n", accept)
	if _, err := rw.WriteString(response); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if err := rw.Flush(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, rw, nil
}

func computeAcceptKey(key string) string {
	h := sha1.Sum([]byte(key + wsGUID))
	return base64.StdEncoding.EncodeToString(h[:])
}

func headerContains(h http.Header, name, value string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), value) {
				return true
			}
		}
	}
	return false
}

type wsClient struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	send chan []byte
	once sync.Once
}

func newWSClient(conn net.Conn, rw *bufio.ReadWriter) *wsClient {
	return &wsClient{
		conn: conn,
		rw:   rw,
		send: make(chan []byte, 256),
	}
}

func (c *wsClient) writeJSON(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeTextFrame(c.rw, data)
}

func (c *wsClient) writePump(onClose func()) {
	defer onClose()
	for msg := range c.send {
		if err := writeTextFrame(c.rw, msg); err != nil {
			return
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		_ = c.conn.Close()
		close(c.send)
	})
}

func writeTextFrame(w *bufio.ReadWriter, payload []byte) error {
	var header [10]byte
	header[0] = 0x81 // FIN + text
	var headerLen int
	switch {
	case len(payload) < 126:
		header[1] = byte(len(payload))
		headerLen = 2
	case len(payload) <= 0xFFFF:
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(len(payload)))
		headerLen = 4
	default:
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(len(payload)))
		headerLen = 10
	}
	if _, err := w.Write(header[:headerLen]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return w.Flush()
}
