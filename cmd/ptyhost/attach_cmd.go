package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"github.com/attn-sh/ptyhost/internal/session"
)

// attachRequest mirrors the server's websocket command frame.
type attachRequest struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

type attachFrame struct {
	Type  string         `json:"type"`
	Error string         `json:"error,omitempty"`
	Event *session.Event `json:"event,omitempty"`
}

// handleAttach connects the current terminal to a running session:
// stdin is forwarded as write requests, session data events stream to
// stdout, and SIGWINCH propagates as resize requests.
func handleAttach(args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8521", "Session host address")
	token := fs.String("token", "", "Access token")

	fs.Usage = func() {
		fmt.Println("Usage: ptyhost attach [options] <session-id>")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	sessionID := fs.Arg(0)

	if err := runAttach(*addr, *token, sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "attach failed: %v\n", err)
		os.Exit(1)
	}
}

func runAttach(addr, token, sessionID string) error {
	wsURL := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	if token != "" {
		wsURL.RawQuery = url.Values{"token": {token}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

	sendResize := func() {
		if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			_ = conn.WriteJSON(attachRequest{
				Type: "resize",
				ID:   sessionID,
				Cols: uint16(cols),
				Rows: uint16(rows),
			})
		}
	}
	sendResize()

	sigwinch := make(chan os.Signal, 1)
	signal.Notify(sigwinch, syscall.SIGWINCH)
	defer signal.Stop(sigwinch)
	go func() {
		for range sigwinch {
			sendResize()
		}
	}()

	done := make(chan error, 2)

	// Session events to stdout. Exit events for our session end the
	// attachment.
	go func() {
		for {
			var frame attachFrame
			if err := conn.ReadJSON(&frame); err != nil {
				done <- err
				return
			}
			if frame.Type != "event" || frame.Event == nil || frame.Event.ID != sessionID {
				continue
			}
			switch frame.Event.Event {
			case session.EventData:
				raw, err := base64.StdEncoding.DecodeString(frame.Event.Data)
				if err != nil {
					continue
				}
				if _, err := os.Stdout.Write(raw); err != nil {
					done <- err
					return
				}
			case session.EventExit:
				done <- nil
				return
			}
		}
	}()

	// Stdin to the session. Ctrl+Q detaches without killing it.
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				done <- err
				return
			}
			if n == 1 && buf[0] == 17 {
				done <- nil
				return
			}
			if err := conn.WriteJSON(attachRequest{
				Type: "write",
				ID:   sessionID,
				Data: string(buf[:n]),
			}); err != nil {
				done <- err
				return
			}
		}
	}()

	return <-done
}
