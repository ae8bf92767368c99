package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emotive-engine/groove/internal/engine"
	"github.com/emotive-engine/groove/internal/gesture"
	"github.com/emotive-engine/groove/internal/rhythm"
	"github.com/emotive-engine/groove/internal/tempo"
)

// EngineInterface is the slice of the engine the web server needs.
type EngineInterface interface {
	Estimate() tempo.Estimate
	Hypotheses() []tempo.Estimate
	RhythmState() rhythm.State
	ActiveGestures() []gesture.ActiveGesture
	GestureNames() []string
	TriggerGesture(name string, align gesture.Alignment) (gesture.Handle, error)
	CancelGesture(h gesture.Handle) bool
	SetBPM(v float64) float64
	SetGrooveConfidence(v float64)
	ClearGrooveConfidence()
}

type Server struct {
	mu        sync.RWMutex
	engine    EngineInterface
	clients   map[*websocketClient]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
	log       *log.Logger
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

type StatusResponse struct {
	Tempo    TempoStatus     `json:"tempo"`
	Rhythm   RhythmStatus    `json:"rhythm"`
	Gestures []GestureStatus `json:"gestures"`
}

type TempoStatus struct {
	BPM        float64          `json:"bpm"`
	Confidence float64          `json:"confidence"`
	LockStage  int              `json:"lockStage"`
	Hypotheses []tempo.Estimate `json:"hypotheses,omitempty"`
}

type RhythmStatus struct {
	BPM       float64 `json:"bpm"`
	TargetBPM float64 `json:"targetBpm"`
	Marker    string  `json:"marker"`
	BeatPhase float64 `json:"beatPhase"`
}

type GestureStatus struct {
	Name     string  `json:"name"`
	Handle   string  `json:"handle"`
	Blend    string  `json:"blend"`
	Progress float64 `json:"progress"`
	State    string  `json:"state"`
}

type TriggerRequest struct {
	Gesture   string `json:"gesture"`
	Alignment string `json:"alignment,omitempty"`
}

type TriggerResponse struct {
	Handle string `json:"handle"`
}

type BPMRequest struct {
	BPM float64 `json:"bpm"`
}

type GrooveRequest struct {
	Intensity *float64 `json:"intensity"`
}

func NewServer(eng EngineInterface, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine:    eng,
		clients:   make(map[*websocketClient]bool),
		broadcast: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger,
	}
}

func (s *Server) Start(port int) error {
	http.HandleFunc("/api/status", s.handleStatus)
	http.HandleFunc("/api/gestures", s.handleGestures)
	http.HandleFunc("/api/trigger", s.handleTrigger)
	http.HandleFunc("/api/cancel", s.handleCancel)
	http.HandleFunc("/api/bpm", s.handleBPM)
	http.HandleFunc("/api/groove", s.handleGroove)
	http.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", port)
	s.log.Printf("[web] server starting on http://0.0.0.0%s", addr)

	go s.broadcastLoop()

	return http.ListenAndServe(addr, nil)
}

type wireEvent struct {
	Kind    string  `json:"kind"`
	Marker  string  `json:"marker,omitempty"`
	Gesture string  `json:"gesture,omitempty"`
	Reason  string  `json:"reason,omitempty"`
	OldBPM  float64 `json:"oldBpm,omitempty"`
	NewBPM  float64 `json:"newBpm,omitempty"`
}

// Publish pushes a composited frame's events to all websocket clients.
// Frames with no events are skipped to keep the wire quiet between beats.
func (s *Server) Publish(frame engine.FrameOutput) {
	if len(frame.Events) == 0 {
		return
	}
	events := make([]wireEvent, 0, len(frame.Events))
	for _, ev := range frame.Events {
		events = append(events, wireEvent{
			Kind:    ev.Kind.String(),
			Marker:  ev.Marker,
			Gesture: ev.Gesture,
			Reason:  ev.Reason,
			OldBPM:  ev.OldBPM,
			NewBPM:  ev.NewBPM,
		})
	}
	data, err := json.Marshal(events)
	if err != nil {
		return
	}
	select {
	case s.broadcast <- data:
	default:
		// drop if channel full
	}
}

func (s *Server) status() StatusResponse {
	est := s.engine.Estimate()
	state := s.engine.RhythmState()

	active := s.engine.ActiveGestures()
	gestures := make([]GestureStatus, 0, len(active))
	for _, g := range active {
		gestures = append(gestures, GestureStatus{
			Name:     g.Name,
			Handle:   g.Handle.String(),
			Blend:    g.Blend.String(),
			Progress: g.Progress,
			State:    g.State.String(),
		})
	}

	return StatusResponse{
		Tempo: TempoStatus{
			BPM:        est.BPM,
			Confidence: est.Confidence,
			LockStage:  est.LockStage,
			Hypotheses: s.engine.Hypotheses(),
		},
		Rhythm: RhythmStatus{
			BPM:       state.BPM,
			TargetBPM: state.TargetBPM,
			Marker:    state.Marker(),
			BeatPhase: state.BeatPhase,
		},
		Gestures: gestures,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.status())
}

func (s *Server) handleGestures(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.GestureNames())
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handle, err := s.engine.TriggerGesture(req.Gesture, gesture.ParseAlignment(req.Alignment))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TriggerResponse{Handle: handle.String()})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TriggerResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	handle, err := gesture.ParseHandle(req.Handle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cancelled := s.engine.CancelGesture(handle)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleBPM(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BPMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	applied := s.engine.SetBPM(req.BPM)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BPMRequest{BPM: applied})
}

func (s *Server) handleGroove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req GrooveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Intensity == nil {
		s.engine.ClearGrooveConfidence()
	} else {
		s.engine.SetGrooveConfidence(*req.Intensity)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

func (s *Server) broadcastLoop() {
	for message := range s.broadcast {
		s.mu.Lock()
		for client := range s.clients {
			select {
			case client.send <- message:
			default:
				close(client.send)
				delete(s.clients, client)
			}
		}
		s.mu.Unlock()
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
