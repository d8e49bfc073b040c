package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"taskmarket/internal/events"
	"taskmarket/internal/money"
)

const (
	MessageBalance     = "balance"
	MessageApplication = "application"
)

type BalanceUpdate struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
}

type ApplicationUpdate struct {
	ApplicationID  string `json:"application_id"`
	TaskID         string `json:"task_id"`
	FromStatus     string `json:"from_status"`
	Status         string `json:"status"`
	Price          string `json:"price,omitempty"`
	ChargedCredits int64  `json:"charged_credits"`
}

type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

// Unregister closes the client's send channel, which stops its writer.
// Repeated calls are no-ops.
func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[userID][client]; !ok {
		return
	}
	delete(h.clients[userID], client)
	close(client.send)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) {
	h.send(userID, message{Type: MessageBalance, Data: update})
}

func (h *Hub) BroadcastApplication(userID string, update ApplicationUpdate) {
	h.send(userID, message{Type: MessageApplication, Data: update})
}

// Notify pushes a transition to both parties and, when the worker's
// balance moved, the new balance to the worker.
func (h *Hub) Notify(_ context.Context, event events.Event) error {
	update := ApplicationUpdate{
		ApplicationID:  event.ApplicationID,
		TaskID:         event.TaskID,
		FromStatus:     event.FromStatus,
		Status:         event.ToStatus,
		Price:          event.Price,
		ChargedCredits: event.ChargedCredits,
	}
	h.BroadcastApplication(event.PosterID, update)
	if event.WorkerID != event.PosterID {
		h.BroadcastApplication(event.WorkerID, update)
	}
	if event.WorkerBalance != nil {
		h.BroadcastBalance(event.WorkerID, BalanceUpdate{
			AccountID: event.WorkerAccountID,
			Balance:   money.FormatCredits(*event.WorkerBalance),
		})
	}
	return nil
}

// send drops the message for clients whose buffer is full.
func (h *Hub) send(userID string, msg message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
