package main

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/pv/sortmachine-go/internal/api"
)

func main() {
	var (
		raw    bool
		limit  int
		urlStr string
	)
	flag.StringVar(&urlStr, "url", "ws://127.0.0.1:8080/api/v1/ws/events", "WebSocket URL of sortmachine server")
	flag.BoolVar(&raw, "raw", false, "print raw JSON messages")
	flag.IntVar(&limit, "limit", 0, "stop after N observed runs (0 = infinite)")
	flag.Parse()

	u, err := url.Parse(urlStr)
	if err != nil {
		log.Fatalf("invalid url: %v", err)
	}
	if u.Scheme != "ws" {
		log.Fatalf("url must start with ws://")
	}
	addr := u.Host
	if !strings.Contains(addr, ":") {
		addr += ":80"
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if err := sendHandshake(conn, reader, u); err != nil {
		log.Fatalf("handshake: %v", err)
	}
	log.Printf("connected to %s", urlStr)

	var m model
	runsSeen, failed := 0, 0
	for {
		op, payload, err := readFrame(reader)
		if err != nil {
			if err == io.EOF {
				log.Println("connection closed by peer")
				break
			}
			log.Fatalf("read frame: %v", err)
		}
		if op == 0x8 { // close frame
			log.Println("received close frame")
			break
		}
		if op != 0x1 {
			continue
		}
		if raw {
			fmt.Println(string(payload))
		}

		var msg api.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("invalid json: %v", err)
			continue
		}
		if msg.Type == "snapshot" {
			log.Printf("snapshot: seq=%d algorithm=%q items=%d", msg.Seq, msg.Algorithm, len(msg.Data))
		}
		res, err := m.apply(msg)
		if err != nil {
			log.Fatalf("model: %v", err)
		}
		if res == nil {
			continue
		}
		runsSeen++
		if !res.Sorted {
			failed++
		}
		log.Printf("run %d: %s, %d swaps, sorted=%t", runsSeen, res.Algorithm, res.Swaps, res.Sorted)
		if limit > 0 && runsSeen >= limit {
			log.Printf("limit reached (%d runs), exiting", limit)
			break
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func sendHandshake(conn net.Conn, reader *bufio.Reader, u *url.URL) error {
	key := make([]byte, 16)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	secKey := base64.StdEncoding.EncodeToString(key)
	host := u.Host
	if host == "" {
		host = "localhost"
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Key: %s\r\n\r\n", path, host, secKey)
	if _, err := io.WriteString(conn, req); err != nil {
		return err
	}

	status, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(status, "HTTP/1.1 101") {
		return fmt.Errorf("unexpected status: %s", strings.TrimSpace(status))
	}
	var acceptOk bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Sec-WebSocket-Accept") {
			acceptOk = strings.TrimSpace(value) == computeAccept(secKey)
		}
	}
	if !acceptOk {
		return fmt.Errorf("handshake failed: Sec-WebSocket-Accept mismatch")
	}
	return nil
}

func computeAccept(key string) string {
	const guid = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	sum := sha1.Sum([]byte(key + guid))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// readFrame читает один немаскированный кадр сервера.
func readFrame(r *bufio.Reader) (opcode byte, payload []byte, err error) {
	h1, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	h2, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	opcode = h1 & 0x0f
	if h2&0x80 != 0 {
		return 0, nil, fmt.Errorf("server sent masked frame")
	}
	length := uint64(h2 & 0x7f)
	switch length {
	case 126:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, nil, err
		}
		length = uint64(binary.BigEndian.Uint16(buf[:]))
	case 127:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, nil, err
		}
		length = binary.BigEndian.Uint64(buf[:])
	}
	if length > 64<<20 {
		return 0, nil, fmt.Errorf("frame too large: %d", length)
	}
	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return opcode, payload, nil
}
