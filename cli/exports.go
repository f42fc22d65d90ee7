// Package cli provides the command-line interface for actionq.
// This file re-exports internal packages for embedding the queue in other programs.
package cli

import (
	"github.com/zot/actionq/internal/protocol"
	"github.com/zot/actionq/internal/queue"
	"github.com/zot/actionq/internal/schema"
	"github.com/zot/actionq/internal/server"
	"github.com/zot/actionq/internal/tick"
	"github.com/zot/actionq/internal/transport"
)

// Re-export queue types
type (
	Action    = protocol.Action
	Priority  = protocol.Priority
	Batch     = protocol.Batch
	Event     = protocol.Event
	Queue     = queue.Queue
	Transport = queue.Transport
	Host      = tick.Host
	Registry  = schema.Registry
	FieldSpec = schema.FieldSpec
	Server    = server.Server
)

// Re-export priorities
const (
	PriorityNone      = protocol.PriorityNone
	PriorityLow       = protocol.PriorityLow
	PriorityNormal    = protocol.PriorityNormal
	PriorityHigh      = protocol.PriorityHigh
	PriorityImmediate = protocol.PriorityImmediate
)

// Re-export constructors
var (
	NewAction           = protocol.NewAction
	ParsePrioritySuffix = protocol.ParsePrioritySuffix
	NewSerializer       = protocol.NewSerializer
	NewQueue            = queue.New
	NewHost             = tick.NewHost
	NewRegistry         = schema.NewRegistry
	LoadSchema          = schema.LoadFile
	NewEventQueue       = transport.NewEventQueue
	NewTransport        = transport.New
	NewServer           = server.New
)
