package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeGDSCells is sent after a layout upload with its cell list
	EventTypeGDSCells EventType = "gds:cells"
	// EventTypeGDSScanned carries the layer scan of the current layout
	EventTypeGDSScanned EventType = "gds:scanned"
	// EventTypeCIRCells is sent after a netlist upload with its cell list
	EventTypeCIRCells EventType = "cir:cells"
	// EventTypeCIRScanned carries the netlist scan
	EventTypeCIRScanned EventType = "cir:scanned"
	// EventTypeTextUploaded is sent when a cell name list is uploaded
	EventTypeTextUploaded EventType = "cells:txtUploaded"
	// EventTypeCellsChanged is sent when the LVS cell selection changes
	EventTypeCellsChanged EventType = "cells:changed"
	// EventTypeRulesChanged is sent when the rule selection changes
	EventTypeRulesChanged EventType = "rules:changed"
	// EventTypeReset tells clients to drop their selections
	EventTypeReset EventType = "lvs:reset"
	// EventTypePairChanged is sent when the layout or netlist file changes
	EventTypePairChanged EventType = "lvs:pairChanged"
	// EventTypeRun reports a finished LVS run
	EventTypeRun EventType = "lvs:run"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"

	eventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string              `json:"type"`
	Data SubscriptionRequest `json:"data"`
}

// SubscriptionRequest limits a client to a subset of event types
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	IP           string
	UserAgent    string

	mu sync.Mutex
}

func (c *Client) subscribe(sub SubscriptionRequest) {
	c.mu.Lock()
	c.Subscription = &sub
	c.mu.Unlock()
}

// wants reports whether the client subscribed to eventType; clients without
// a subscription receive everything.
func (c *Client) wants(eventType EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Subscription == nil || eventType == eventTypePong {
		return true
	}
	for _, t := range c.Subscription.Events {
		if t == eventType {
			return true
		}
	}
	return false
}
