// Package remote serves a JSON-RPC 2.0 control and progress API over
// websocket (and plain HTTP POST) for a running weave.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"leaflet-weaver/pkg/log"
	"leaflet-weaver/pkg/scheduler"
	"leaflet-weaver/pkg/weave"
)

// Controller is the run the server reports on. *scheduler.Scheduler
// satisfies it.
type Controller interface {
	State() scheduler.State
	Index() int
	Len() int
	Cleanings() int
	Pending() bool
	RequestCleaning() bool
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g. ":7125")
	Addr string

	Controller Controller
	// Cancel stops the run; weave.cancel fails when it is nil.
	Cancel context.CancelFunc
	RunID  string
	Logger *log.Logger
}

// Status is the result of weave.status.
type Status struct {
	RunID     string  `json:"run_id,omitempty"`
	State     string  `json:"state"`
	Index     int     `json:"index"`
	Steps     int     `json:"steps"`
	Cleanings int     `json:"cleanings"`
	Pending   bool    `json:"cleaning_pending"`
	Progress  float64 `json:"progress"`
}

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeServerError    = -32000
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string { return e.msg }

// Server provides the control API.
type Server struct {
	cfg Config
	log *log.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clients  map[int64]*wsClient
	clientMu sync.RWMutex
	nextID   atomic.Int64

	running atomic.Bool
}

// New creates a server for cfg.Controller.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("remote")
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		clients: make(map[int64]*wsClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	mux.HandleFunc("/status", s.handleStatus)
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: mux}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe listens on the configured address and blocks.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("remote server: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.running.Store(true)
	s.log.WithField("addr", ln.Addr().String()).Info("control API listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("remote server: %w", err)
	}
	return nil
}

// Stop closes every websocket client and the listener.
func (s *Server) Stop() error {
	s.running.Store(false)
	s.clientMu.Lock()
	for _, c := range s.clients {
		c.Close()
	}
	s.clients = make(map[int64]*wsClient)
	s.clientMu.Unlock()
	return s.httpServer.Close()
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return len(s.clients)
}

// Status snapshots the controller.
func (s *Server) Status() Status {
	c := s.cfg.Controller
	st := Status{
		RunID:     s.cfg.RunID,
		State:     c.State().String(),
		Index:     c.Index(),
		Steps:     c.Len(),
		Cleanings: c.Cleanings(),
		Pending:   c.Pending(),
	}
	if st.Steps > 0 {
		st.Progress = float64(st.Index) / float64(st.Steps)
	}
	return st
}

func (s *Server) dispatch(method string, client *wsClient) (any, error) {
	switch method {
	case "weave.status":
		return s.Status(), nil
	case "weave.request_cleaning":
		accepted := s.cfg.Controller.RequestCleaning()
		s.log.WithField("accepted", accepted).Info("cleaning requested remotely")
		return map[string]any{"accepted": accepted}, nil
	case "weave.cancel":
		if s.cfg.Cancel == nil {
			return nil, &rpcError{codeServerError, "run cannot be cancelled"}
		}
		s.log.Warn("run cancelled remotely")
		s.cfg.Cancel()
		return map[string]any{"cancelled": true}, nil
	case "server.connection.identify":
		var id int64
		if client != nil {
			id = client.id
		}
		return map[string]any{"connection_id": id}, nil
	default:
		return nil, &rpcError{codeMethodNotFound, "method not found: " + method}
	}
}

func (s *Server) call(req jsonRPCRequest, client *wsClient) jsonRPCResponse {
	result, err := s.dispatch(req.Method, client)
	if err != nil {
		code := codeServerError
		var re *rpcError
		if errors.As(err, &re) {
			code = re.code
		}
		return jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: code, Message: err.Error()}, ID: req.ID}
	}
	return jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func parseError() jsonRPCResponse {
	return jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: codeParseError, Message: "Parse error"}}
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := parseError()
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		resp = s.call(req, nil)
	}
	writeJSON(w, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"result": s.Status()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Broadcast sends a notification to every websocket client.
func (s *Server) Broadcast(method string, params ...any) {
	msg := notification{JSONRPC: "2.0", Method: method, Params: params}
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	for _, c := range s.clients {
		c.Send(msg)
	}
}

// Observer returns scheduler callbacks that push progress notifications.
func (s *Server) Observer() scheduler.Observer {
	return scheduler.Observer{
		OnStep: func(i int, step weave.Step, elapsed time.Duration) {
			s.Broadcast("notify_step", map[string]any{
				"index":      i,
				"pass":       step.Pass.String(),
				"layer":      step.Layer,
				"source":     step.Source,
				"dest":       step.Dest,
				"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
			})
		},
		OnCleaning: func(i int, elapsed time.Duration) {
			s.Broadcast("notify_cleaning", map[string]any{
				"before":     i,
				"elapsed_ms": float64(elapsed.Microseconds()) / 1000,
			})
		},
		OnState: func(st scheduler.State) {
			s.Broadcast("notify_state", map[string]any{"state": st.String()})
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{
		id:     s.nextID.Add(1),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
	s.clientMu.Lock()
	s.clients[c.id] = c
	s.clientMu.Unlock()
	s.log.WithField("client", c.id).Debug("websocket client connected")

	go c.writePump()
	c.readPump()
}

func (s *Server) removeClient(c *wsClient) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()
	s.log.WithField("client", c.id).Debug("websocket client disconnected")
}

type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	once   sync.Once
}

// Send queues msg; it is dropped when the client is slow or gone.
func (c *wsClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.log.WithField("client", c.id).Warn("dropping message, send queue full")
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		var req jsonRPCRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.Send(parseError())
			continue
		}
		c.Send(c.server.call(req, c))
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
