package server

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"mediadupfinder/internal/models"
)

// Minimal RFC 6455 server side: text frames out, masked frames in

const (
	wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// maxClientFrame bounds the payload a client may send
	maxClientFrame = 64 << 10
)

type wsConn struct {
	conn   net.Conn
	closed bool
	mu     sync.Mutex
}

// statusMessage is pushed to clients whenever the watched session changes
type statusMessage struct {
	Type   string        `json:"type"`
	Status models.Status `json:"status"`
}

// clientMessage is what the UI sends: pings and tab visibility
type clientMessage struct {
	Type      string `json:"type"`
	TabActive *bool  `json:"tab_active,omitempty"`
}

// handleWebSocket streams status updates of ?class= and tracks the client
// for the idle timeout. Without a class it only monitors the connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var (
		updates <-chan struct{}
		release = func() {}
		class   models.AssetClass
	)
	if name := r.URL.Query().Get("class"); name != "" {
		c, err := models.ParseAssetClass(name)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		ch, cancel, err := s.engine.Subscribe(c)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		class, updates, release = c, ch, cancel
	}

	conn, err := upgradeWebSocket(w, r)
	if err != nil {
		release()
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ws := &wsConn{conn: conn}

	// Track active client
	s.mu.Lock()
	s.activeClients++
	s.mu.Unlock()

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		release()
		ws.close()
		wg.Wait()
		s.mu.Lock()
		s.activeClients--
		s.mu.Unlock()
		s.recordActivity()
	}()

	ws.sendText(`{"type":"connected"}`)

	if updates != nil {
		ws.sendStatus(s.engine.Status(class))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case _, ok := <-updates:
					if !ok {
						return
					}
					if err := ws.sendStatus(s.engine.Status(class)); err != nil {
						return
					}
				}
			}
		}()
	}

	reader := bufio.NewReader(conn)
	for {
		msg, err := readWSMessage(reader)
		if err != nil {
			break
		}

		s.recordActivity()

		var m clientMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		if m.Type == "ping" {
			ws.sendText(`{"type":"pong"}`)
		}
		if m.TabActive != nil {
			s.setTabActive(*m.TabActive)
		}
	}
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request) (net.Conn, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return nil, errors.New("not a websocket request")
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return nil, errors.New("missing Sec-WebSocket-Key")
	}

	// Calculate accept key
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	acceptKey := base64.StdEncoding.EncodeToString(h.Sum(nil))

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, errors.New("hijacking not supported")
	}

	conn, bufrw, err := hj.Hijack()
	if err != nil {
		return nil, err
	}

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey + "\r\n\r\n"

	bufrw.WriteString(response)
	if err := bufrw.Flush(); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

func (ws *wsConn) sendStatus(st models.Status) error {
	data, err := json.Marshal(statusMessage{Type: "status", Status: st})
	if err != nil {
		return err
	}
	return ws.sendText(string(data))
}

func (ws *wsConn) sendText(msg string) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.closed {
		return errors.New("connection closed")
	}

	_, err := ws.conn.Write(encodeFrame(0x81, []byte(msg)))
	return err
}

func (ws *wsConn) close() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.closed {
		ws.closed = true
		ws.conn.Close()
	}
}

// encodeFrame builds an unmasked frame; first is the FIN bit plus opcode
func encodeFrame(first byte, data []byte) []byte {
	frame := make([]byte, 0, 10+len(data))
	frame = append(frame, first)

	switch {
	case len(data) < 126:
		frame = append(frame, byte(len(data)))
	case len(data) < 65536:
		frame = append(frame, 126)
		frame = binary.BigEndian.AppendUint16(frame, uint16(len(data)))
	default:
		frame = append(frame, 127)
		frame = binary.BigEndian.AppendUint64(frame, uint64(len(data)))
	}

	return append(frame, data...)
}

func readWSMessage(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	opcode := header[0] & 0x0F
	if opcode == 0x08 {
		return nil, errors.New("close frame received")
	}

	payloadLen := uint64(header[1] & 0x7F)
	masked := (header[1] & 0x80) != 0

	switch payloadLen {
	case 126:
		lenBytes := make([]byte, 2)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, err
		}
		payloadLen = uint64(binary.BigEndian.Uint16(lenBytes))
	case 127:
		lenBytes := make([]byte, 8)
		if _, err := io.ReadFull(r, lenBytes); err != nil {
			return nil, err
		}
		payloadLen = binary.BigEndian.Uint64(lenBytes)
	}
	if payloadLen > maxClientFrame {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", payloadLen)
	}

	var maskKey []byte
	if masked {
		maskKey = make([]byte, 4)
		if _, err := io.ReadFull(r, maskKey); err != nil {
			return nil, err
		}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return payload, nil
}
