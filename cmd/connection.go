// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/stboot/pkg/stm32boot"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// SerialConnection wraps a serial port. It also serves Bluetooth RFCOMM
// links bound to a /dev/rfcommN TTY.
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// SetReadTimeout bounds the next Read; the port returns (0, nil) on expiry
func (s *SerialConnection) SetReadTimeout(t time.Duration) error {
	return s.port.SetReadTimeout(t)
}

// ResetInput discards bytes received but not yet read
func (s *SerialConnection) ResetInput() error {
	return s.port.ResetInputBuffer()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketConnection carries the bootloader byte stream in binary WebSocket
// messages. A pump goroutine owns the socket's read side so that read
// timeouts never hit the socket itself: a gorilla read deadline that fires
// leaves the connection unusable.
type WebSocketConnection struct {
	conn *websocket.Conn

	data   chan []byte
	failed chan struct{}
	done   chan struct{}
	err    error

	buf     []byte
	timeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:    conn,
		data:    make(chan []byte, 64),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
		timeout: stm32boot.DefaultTimeout,
	}
	go w.pump()
	return w
}

func (w *WebSocketConnection) pump() {
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			close(w.failed)
			return
		}

		// The bridge only forwards binary frames; anything else is chatter
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.data <- data:
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	var expired <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case data := <-w.data:
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-w.failed:
		return 0, w.err
	case <-w.done:
		return 0, ErrConnectionClosed
	case <-expired:
		return 0, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadTimeout bounds the next Read; Read returns (0, nil) on expiry
func (w *WebSocketConnection) SetReadTimeout(t time.Duration) error {
	w.timeout = t
	return nil
}

// ResetInput drops buffered and queued messages
func (w *WebSocketConnection) ResetInput() error {
	w.buf = nil
	for {
		select {
		case <-w.data:
		default:
			return nil
		}
	}
}

func (w *WebSocketConnection) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close()
	})
	return err
}

// parseParity maps the --parity flag to a serial parity mode
func parseParity(name string) (serial.Parity, error) {
	switch strings.ToLower(name) {
	case "even", "e":
		return serial.EvenParity, nil
	case "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q (use even, odd or none)", name)
	}
}

// OpenSerialConnection opens a serial port. The bootloader expects 8E1; RFCOMM
// bridges usually ignore parity.
func OpenSerialConnection(portName string, baudRate int, parity serial.Parity) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   parity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("STBOOT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// cachedPassword keeps reconnects from prompting again
var (
	passwordOnce sync.Once
	password     string
	passwordErr  error
)

// OpenConnection opens either a serial or WebSocket connection based on flags
func OpenConnection() (stm32boot.Conn, string, error) {
	if wsURL != "" {
		pw := ""
		if wsUsername != "" {
			passwordOnce.Do(func() { password, passwordErr = GetPassword() })
			if passwordErr != nil {
				return nil, "", passwordErr
			}
			pw = password
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, pw, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		par, err := parseParity(parity)
		if err != nil {
			return nil, "", err
		}
		conn, err := OpenSerialConnection(portName, baudRate, par)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud, parity %s", portName, baudRate, strings.ToLower(parity)), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
