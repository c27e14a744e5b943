package network

import "time"

// EventType identifies a graph mutation
type EventType uint8

const (
	EventNodeAdded EventType = iota + 1
	EventEdgeAdded
	EventNodeStatusChanged
	EventEdgeStatusChanged
)

// String returns the event name
func (t EventType) String() string {
	switch t {
	case EventNodeAdded:
		return "NodeAdded"
	case EventEdgeAdded:
		return "EdgeAdded"
	case EventNodeStatusChanged:
		return "NodeStatusChanged"
	case EventEdgeStatusChanged:
		return "EdgeStatusChanged"
	default:
		return "Unknown"
	}
}

// Event describes a committed graph mutation
type Event struct {
	Type      EventType
	Node      NodeID
	Edge      EdgeID
	Endpoints [2]NodeID
	OldStatus string
	NewStatus string
	At        time.Time
}

// Listener receives events synchronously after the mutation is committed
// and the graph lock released. Listeners may read the graph.
type Listener func(Event)

// Subscribe registers a listener for all subsequent mutations
func (g *Graph) Subscribe(l Listener) {
	g.listenersMu.Lock()
	g.listeners = append(g.listeners, l)
	g.listenersMu.Unlock()
}

func (g *Graph) emit(e Event) {
	g.listenersMu.RLock()
	ls := g.listeners
	g.listenersMu.RUnlock()
	for _, l := range ls {
		l(e)
	}
}
