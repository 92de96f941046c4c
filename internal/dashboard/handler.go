package dashboard

import (
	"sync"
	"time"

	"github.com/mschirtzinger/khata/internal/schema"
	ksync "github.com/mschirtzinger/khata/internal/sync"
)

// Handler turns engine and daemon callbacks into dashboard messages and
// keeps the aggregate status served by /status.
type Handler struct {
	server *Server

	mu     sync.RWMutex
	status StatusData
}

// NewHandler creates a handler that broadcasts through server.
func NewHandler(server *Server) *Handler {
	h := &Handler{
		server: server,
		status: StatusData{Online: true},
	}
	server.SetStatusFunc(h.Status)
	return h
}

// StatusData is the persistent sync indicator.
type StatusData struct {
	Online      bool      `json:"online"`
	Pending     bool      `json:"pending"`
	LastSaved   time.Time `json:"last_saved,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastMessage string    `json:"last_message,omitempty"`
	StoreName   string    `json:"store_name,omitempty"`
}

// SyncResultData is the payload of a sync_result message.
type SyncResultData struct {
	Outcome      string    `json:"outcome"`
	Trigger      string    `json:"trigger"`
	Pending      bool      `json:"pending"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
	SummaryError string    `json:"summary_error,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
	LastUpdated  time.Time `json:"last_updated,omitempty"`

	// Notify asks the UI for a blocking notification. Only manual saves
	// that failed set it; background failures update the indicator only.
	Notify bool `json:"notify"`
}

// SnapshotLoadedData is the payload of a snapshot_loaded message.
type SnapshotLoadedData struct {
	Source         string `json:"source"`
	Outcome        string `json:"outcome"`
	Customers      int    `json:"customers"`
	Transactions   int    `json:"transactions"`
	NeedsStoreName bool   `json:"needs_store_name"`
	StoreName      string `json:"store_name,omitempty"`
}

// ConnectivityData is the payload of a connectivity message.
type ConnectivityData struct {
	Online bool `json:"online"`
}

// OnSyncResult handles a finished save. It is safe to register with
// Engine.OnResult; it never blocks.
func (h *Handler) OnSyncResult(r ksync.Result) {
	data := SyncResultData{
		Outcome:     r.Outcome.String(),
		Trigger:     r.Trigger.String(),
		Pending:     r.Pending,
		Message:     r.Message(),
		CompletedAt: r.CompletedAt,
		LastUpdated: r.LastUpdated,
		Notify:      r.Trigger == ksync.Manual && r.Outcome.IsFailure(),
	}
	if err := r.Err(); err != nil {
		data.Error = err.Error()
	}
	if r.SummaryErr != nil {
		data.SummaryError = r.SummaryErr.Error()
	}

	h.mu.Lock()
	h.status.Pending = r.Pending
	h.status.LastOutcome = data.Outcome
	h.status.LastMessage = data.Message
	if r.Outcome == ksync.Success {
		h.status.LastSaved = r.CompletedAt
	}
	h.mu.Unlock()

	h.send(MessageTypeSyncResult, data)
}

// OnSnapshotLoaded handles a completed Load.
func (h *Handler) OnSnapshotLoaded(lr ksync.LoadResult, snap *schema.Snapshot) {
	data := SnapshotLoadedData{
		Source:         lr.Source.String(),
		Outcome:        lr.Outcome.String(),
		NeedsStoreName: lr.NeedsStoreName,
	}
	if snap != nil {
		data.Customers = len(snap.Customers)
		data.Transactions = len(snap.Transactions)
		data.StoreName = snap.Name()
	}

	h.mu.Lock()
	h.status.StoreName = data.StoreName
	h.mu.Unlock()

	h.send(MessageTypeSnapshotLoaded, data)
}

// OnConnectivity handles a network transition.
func (h *Handler) OnConnectivity(online bool) {
	h.mu.Lock()
	h.status.Online = online
	h.mu.Unlock()

	h.send(MessageTypeConnectivity, ConnectivityData{Online: online})
}

// SetLastSaved seeds the indicator from persisted state at startup.
func (h *Handler) SetLastSaved(t time.Time, pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.LastSaved = t
	h.status.Pending = pending
}

// Status returns the current indicator state.
func (h *Handler) Status() StatusData {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *Handler) send(typ MessageType, data any) {
	msg, err := newMessage(typ, data)
	if err != nil {
		h.server.logger.Printf("Failed to encode %s: %v", typ, err)
		return
	}
	h.server.Broadcast(msg)
}
