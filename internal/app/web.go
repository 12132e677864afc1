package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/location_bridge/internal/config"
	"github.com/relabs-tech/location_bridge/internal/logging"
	"github.com/relabs-tech/location_bridge/internal/publish"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamMessage is what /ws clients receive for every MQTT message.
type streamMessage struct {
	Type string          `json:"type"` // "fix" or "status"
	Data json.RawMessage `json:"data"`
}

// locationView keeps the latest fix and status seen on MQTT and streams
// every message to websocket clients.
type locationView struct {
	log zerolog.Logger

	mu         sync.RWMutex
	fix        publish.FixMessage
	haveFix    bool
	status     publish.Status
	haveStatus bool

	clientsMu sync.Mutex
	clients   map[*wsClient]struct{}
}

func newLocationView(log zerolog.Logger) *locationView {
	return &locationView{log: log, clients: make(map[*wsClient]struct{})}
}

func (v *locationView) handleFix(payload []byte) error {
	var f publish.FixMessage
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("gps fix payload: %w", err)
	}
	v.mu.Lock()
	v.fix, v.haveFix = f, true
	v.mu.Unlock()
	v.broadcast("fix", payload)
	return nil
}

func (v *locationView) handleStatus(payload []byte) error {
	var st publish.Status
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("gps status payload: %w", err)
	}
	v.mu.Lock()
	v.status, v.haveStatus = st, true
	v.mu.Unlock()
	v.broadcast("status", payload)
	return nil
}

func (v *locationView) broadcast(kind string, payload []byte) {
	data, err := json.Marshal(streamMessage{Type: kind, Data: payload})
	if err != nil {
		v.log.Warn().Err(err).Msg("stream marshal")
		return
	}
	v.clientsMu.Lock()
	defer v.clientsMu.Unlock()
	for c := range v.clients {
		select {
		case c.send <- data:
		default:
			v.log.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("ws dropped message")
		}
	}
}

func (v *locationView) register(c *wsClient) {
	v.clientsMu.Lock()
	v.clients[c] = struct{}{}
	v.clientsMu.Unlock()
}

func (v *locationView) unregister(c *wsClient) {
	v.clientsMu.Lock()
	defer v.clientsMu.Unlock()
	if _, ok := v.clients[c]; ok {
		delete(v.clients, c)
		close(c.send)
	}
}

func (v *locationView) clientCount() int {
	v.clientsMu.Lock()
	defer v.clientsMu.Unlock()
	return len(v.clients)
}

func (v *locationView) router(staticDir string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/api/location", func(w http.ResponseWriter, _ *http.Request) {
		v.mu.RLock()
		fix, ok := v.fix, v.haveFix
		v.mu.RUnlock()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, fix, v.log)
	})
	r.Get("/api/status", func(w http.ResponseWriter, _ *http.Request) {
		v.mu.RLock()
		st, ok := v.status, v.haveStatus
		v.mu.RUnlock()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, st, v.log)
	})
	r.Get("/ws", v.serveWS)

	// Static files from staticDir as the root
	r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	return r
}

func (v *locationView) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.log.Warn().Err(err).Msg("ws upgrade")
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	v.register(c)
	go c.writePump()
	c.readPump()
	v.unregister(c)
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// readPump discards client messages and returns when the connection fails.
func (c *wsClient) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// RunWeb serves the latest fix, a websocket stream of every bridge message
// and the static UI from ./web.
func RunWeb() error {
	cfg := config.Get()
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	logging.Configure(logging.Config{Level: cfg.LogLevel, Service: "web", Console: true})
	log := logging.WithComponent("web")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	defer client.Disconnect(cfg.MQTTDisconnectQuiesceMS)
	log.Info().Str("broker", cfg.MQTTBroker).Msg("connected to MQTT broker")

	view := newLocationView(log)
	subs := map[string]func([]byte) error{
		cfg.TopicGPS:       view.handleFix,
		cfg.TopicGPSStatus: view.handleStatus,
	}
	for topic, handle := range subs {
		token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := handle(msg.Payload()); err != nil {
				log.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt payload")
			}
		})
		token.Wait()
		if token.Error() != nil {
			return token.Error()
		}
		log.Info().Str("topic", topic).Msg("subscribed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serve(gctx, g, &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           view.router("web"),
		ReadHeaderTimeout: 5 * time.Second,
	}, log)
	return g.Wait()
}
