// Command lobbyctl is a line oriented lobby client. Each stdin line is sent
// as one JSON command and every received message is printed as one JSON line.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/kephaslobby/internal/protocol"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:8001", "lobby TCP address")
		wsURL    = flag.String("ws", "", "websocket url, e.g. ws://127.0.0.1:8080/ws (overrides -addr)")
		login    = flag.String("login", "", "log in with this account")
		password = flag.String("password", "", "password for -login")
		token    = flag.String("token", "", "log in with a resume token")
	)
	flag.Parse()

	if err := run(*addr, *wsURL, *login, *password, *token); err != nil {
		fmt.Fprintf(os.Stderr, "lobbyctl: %v\n", err)
		os.Exit(1)
	}
}

func run(addr, wsURL, login, password, token string) error {
	conn, err := dial(addr, wsURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	first := protocol.Message{"command": "ask_session"}
	switch {
	case token != "":
		first = protocol.Message{"command": "hello", "token": token}
	case login != "":
		first = protocol.Message{"command": "hello", "login": login, "password": password}
	}
	if err := send(conn, first); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- printMessages(conn, os.Stdout) }()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case err := <-done:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			var msg protocol.Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				fmt.Fprintf(os.Stderr, "lobbyctl: not a JSON object: %v\n", err)
				continue
			}
			if err := send(conn, msg); err != nil {
				return err
			}
		}
	}
}

func dial(addr, wsURL string) (io.ReadWriteCloser, error) {
	if wsURL == "" {
		return net.DialTimeout("tcp", addr, 10*time.Second)
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, err
	}
	return &wsStream{ws: ws}, nil
}

func send(w io.Writer, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func printMessages(r io.Reader, out io.Writer) error {
	dec := protocol.NewDecoder(0)
	enc := json.NewEncoder(out)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			msgs, derr := dec.Feed(buf[:n])
			for _, msg := range msgs {
				if err := enc.Encode(msg); err != nil {
					return err
				}
			}
			if derr != nil {
				return derr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// wsStream reads websocket message bodies as one stream and writes each
// frame as a binary message.
type wsStream struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.ws.NextReader()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			if err != nil {
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.ws.Close()
}
