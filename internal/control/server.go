package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"

	"github.com/1o0n1/asemic/internal/message"
	"github.com/1o0n1/asemic/internal/protocol"
	"github.com/1o0n1/asemic/internal/resolve"
	"github.com/1o0n1/asemic/internal/state"
	"github.com/1o0n1/asemic/internal/transmitter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP+WebSocket control plane: add_key/remove_key, enqueue,
// subscribe, lookup_file, bounded exactly to those five operations.
type Server struct {
	state    *state.SharedState
	hub      *Hub
	resolver *resolve.Resolver
	commands chan<- transmitter.Command
	log      logging.LeveledLogger
}

// NewServer wires a Server to the daemon's shared components.
func NewServer(st *state.SharedState, hub *Hub, resolver *resolve.Resolver, commands chan<- transmitter.Command, loggerFactory logging.LoggerFactory) *Server {
	return &Server{
		state:    st,
		hub:      hub,
		resolver: resolver,
		commands: commands,
		log:      loggerFactory.NewLogger("control"),
	}
}

// Handler returns the mux for this server, to be served by the caller.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/keys", s.handleKeys)
	mux.HandleFunc("/send", s.handleSend)
	mux.HandleFunc("/download/", s.handleDownload)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

type keyRequest struct {
	Key string `json:"key"`
}

// handleKeys implements add_key (POST) and remove_key (DELETE).
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		added := s.state.AddKey(req.Key)
		s.hub.Publish(NewKeyUpdate(s.state.Keys()))
		writeJSON(w, http.StatusOK, map[string]bool{"added": added})
	case http.MethodDelete:
		s.state.RemoveKey(req.Key)
		s.hub.Publish(NewKeyUpdate(s.state.Keys()))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type sendRequest struct {
	Target  string `json:"target"`
	Key     string `json:"key"`
	Pattern string `json:"pattern"`
	Text    string `json:"text,omitempty"`
	// Filename/FileData send a File-kind message instead of Text when
	// Filename is non-empty. FileData is base64 in the JSON wire request,
	// decoded by encoding/json's native []byte handling.
	Filename string `json:"filename,omitempty"`
	FileData []byte `json:"file_data,omitempty"`
	// Legacy selects the deprecated XOR+signature envelope (CompatMode)
	// instead of the authoritative AEAD draft.
	Legacy bool `json:"legacy,omitempty"`
}

// handleSend implements enqueue(TransmitCommand), resolving the target host
// through internal/resolve first.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" && req.Text == "" {
		http.Error(w, "one of text or filename is required", http.StatusBadRequest)
		return
	}

	pattern, err := parsePattern(req.Pattern)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	addr, err := s.resolver.Resolve(r.Context(), req.Target)
	if err != nil {
		if errors.Is(err, resolve.ErrResolveFail) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var content message.Content
	if req.Filename != "" {
		content = message.NewFile(req.Filename, req.FileData)
	} else {
		content = message.NewText(req.Text)
	}

	var cmd transmitter.Command
	if req.Legacy {
		cmd = transmitter.SendMessageCompat(addr, req.Key, pattern, content)
	} else {
		cmd = transmitter.SendMessage(addr, req.Key, pattern, content)
	}

	select {
	case s.commands <- cmd:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	default:
		http.Error(w, "transmit queue full", http.StatusServiceUnavailable)
	}
}

func parsePattern(name string) (protocol.ObfuscationPattern, error) {
	switch strings.ToLower(name) {
	case "", "starfall":
		return protocol.Starfall, nil
	case "sunshine":
		return protocol.Sunshine, nil
	default:
		return 0, fmt.Errorf("unknown pattern %q", name)
	}
}

// handleDownload implements lookup_file, streaming the stored body with a
// Content-Disposition header.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/download/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	file, ok := s.state.LookupFile(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(file.Data)
}

// handleWebSocket implements subscribe(): a FullState snapshot on connect,
// then every published Notification until the connection drops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	feed, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	snapshot := NewFullState(s.state.Keys(), s.state.Messages(), s.state.Stats())
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	for n := range feed {
		if err := conn.WriteJSON(n); err != nil {
			s.log.Warnf("dropping subscriber after write error: %v", err)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
