package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeOutputReceived
	TypeSessionReady
	TypeInstancesLoaded
	TypeEngineStateChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Session states carried by StateChangedEvent.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Reasons carried by StateChangedEvent when a session ends.
const (
	ReasonStarted  = "started"
	ReasonStopped  = "stopped"
	ReasonExited   = "exited"
	ReasonShutdown = "shutdown"
)

// StateChangedEvent is published whenever the orchestrator moves between
// idle and running.
type StateChangedEvent struct {
	State     string `json:"state"`
	Instance  string `json:"instance,omitempty"`
	Port      int    `json:"port,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// OutputReceivedEvent carries one chunk of web server output.
// Handlers run off the orchestrator's goroutines and must not assume any
// particular thread.
type OutputReceivedEvent struct {
	Instance  string `json:"instance"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for OutputReceivedEvent.
func (e OutputReceivedEvent) Type() uint32 { return TypeOutputReceived }

// SessionReadyEvent is published once the web server reports it is serving.
type SessionReadyEvent struct {
	Instance  string `json:"instance"`
	Endpoint  string `json:"endpoint"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for SessionReadyEvent.
func (e SessionReadyEvent) Type() uint32 { return TypeSessionReady }

// InstancesLoadedEvent is published after the instance list was (re)loaded.
type InstancesLoadedEvent struct {
	Instances []string `json:"instances"`
	Timestamp string   `json:"timestamp"`
}

// Type returns the event type identifier for InstancesLoadedEvent.
func (e InstancesLoadedEvent) Type() uint32 { return TypeInstancesLoaded }

// EngineStateChangedEvent is published when the shared database engine
// changes state.
type EngineStateChangedEvent struct {
	Engine    string `json:"engine"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// Type returns the event type identifier for EngineStateChangedEvent.
func (e EngineStateChangedEvent) Type() uint32 { return TypeEngineStateChanged }
