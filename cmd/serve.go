// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kestrel Bench Works

package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/kestrelbench/pdtap/pkg/capture"
	"github.com/kestrelbench/pdtap/pkg/pdwire"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bridge live capture to WebSocket viewers",
	Long: `Capture from the device and broadcast decoded events as JSON over a
WebSocket endpoint at /ws.

Each event is {"type": ..., "data": ...} with types "message",
"sample", "marker", "state", and "error". Slow clients are dropped
rather than allowed to stall the capture.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8182", "HTTP listen address")
}

// wsEvent is the JSON envelope every broadcast uses.
type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsMessageData struct {
	Index   int            `json:"index"`
	Time    time.Time      `json:"time"`
	SOP     string         `json:"sop"`
	Name    string         `json:"name"`
	Summary string         `json:"summary,omitempty"`
	Raw     string         `json:"raw"`
	Fields  []pdwire.Field `json:"fields"`
}

type wsSampleData struct {
	Time         time.Time `json:"time"`
	Voltage      float64   `json:"voltage"`
	Current      float64   `json:"current"`
	Power        float64   `json:"power"`
	CC1          float64   `json:"cc1"`
	CC2          float64   `json:"cc2"`
	DPlus        float64   `json:"dplus"`
	DMinus       float64   `json:"dminus"`
	LowFrequency bool      `json:"low_frequency"`
}

type wsMarkerData struct {
	RelativeTime float64 `json:"relative_time"`
	Kind         string  `json:"kind"`
}

// wsHub fans events out to connected viewers. Sends are non-blocking;
// a client whose queue is full gets disconnected.
type wsHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsEvent
}

func newWsHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) add(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn, send: make(chan wsEvent, 128)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop(h)
	return c
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *wsHub) broadcast(ev wsEvent) {
	h.mu.Lock()
	var overloaded []*wsClient
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			overloaded = append(overloaded, c)
		}
	}
	h.mu.Unlock()
	for _, c := range overloaded {
		h.remove(c)
		c.conn.Close()
	}
}

func (c *wsClient) writeLoop(h *wsHub) {
	for ev := range c.send {
		if err := c.conn.WriteJSON(ev); err != nil {
			h.remove(c)
			c.conn.Close()
			return
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers are expected from arbitrary local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	transport, connInfo, err := OpenTransport()
	if err != nil {
		return err
	}

	hub := newWsHub()
	fatal := make(chan error, 1)

	controller, err := capture.NewController(cfg, logger, capture.Callbacks{
		OnMessage: func(index int, msg *pdwire.Message) {
			hub.broadcast(wsEvent{Type: "message", Data: wsMessageData{
				Index:   index,
				Time:    msg.Timestamp(),
				SOP:     msg.SOP(),
				Name:    msg.TypeName(),
				Summary: msg.QuickSummary(),
				Raw:     msg.RawHex(),
				Fields:  msg.Fields(),
			}})
		},
		OnSample: func(s pdwire.Sample, lowFrequency bool) {
			hub.broadcast(wsEvent{Type: "sample", Data: wsSampleData{
				Time:         s.Time,
				Voltage:      s.Voltage,
				Current:      s.Current,
				Power:        s.Power,
				CC1:          s.CC1,
				CC2:          s.CC2,
				DPlus:        s.DPlus,
				DMinus:       s.DMinus,
				LowFrequency: lowFrequency,
			}})
		},
		OnMarker: func(m capture.Marker) {
			hub.broadcast(wsEvent{Type: "marker", Data: wsMarkerData{
				RelativeTime: m.RelativeTime,
				Kind:         m.Kind.String(),
			}})
		},
		OnState: func(s capture.State) {
			hub.broadcast(wsEvent{Type: "state", Data: s.String()})
		},
		OnFatal: func(err error) {
			hub.broadcast(wsEvent{Type: "error", Data: err.Error()})
			select {
			case fatal <- err:
			default:
			}
		},
	})
	if err != nil {
		transport.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		client := hub.add(conn)
		logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("viewer connected")
		// Read loop only to notice the client going away.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.remove(client)
					conn.Close()
					return
				}
			}
		}()
	})

	server := &http.Server{Addr: serveListen, Handler: mux}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	if err := controller.Connect(transport, true); err != nil {
		transport.Close()
		server.Close()
		return err
	}
	if err := controller.Resume(); err != nil {
		server.Close()
		return err
	}

	logger.Info().Str("listen", serveListen).Str("device", connInfo).Msg("event bridge up")
	fmt.Printf("pdtap - Event Bridge\nDevice: %s\nViewers: ws://%s/ws\nPress Ctrl+C to exit\n", connInfo, serveListen)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-interrupt:
		if err := controller.Disconnect(); err != nil && err != capture.ErrNotConnected {
			runErr = err
		}
	case err := <-fatal:
		runErr = fmt.Errorf("capture ended: %w", err)
	case err := <-serverErr:
		if derr := controller.Disconnect(); derr != nil && derr != capture.ErrNotConnected {
			logger.Warn().Err(derr).Msg("disconnect failed")
		}
		runErr = fmt.Errorf("http server: %w", err)
	}

	server.Close()
	return runErr
}
