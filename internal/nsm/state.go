package nsm

// State is a step of the startup handshake.
type State int

const (
	StateInit State = iota
	StateNoManager
	StateStandalone
	StateDiscovering
	StateAnnouncing
	StateAwaitingOpen
	StateOpened
	StateReady
	StateFailed
)

var stateNames = map[State]string{
	StateInit:         "init",
	StateNoManager:    "no_manager",
	StateStandalone:   "standalone",
	StateDiscovering:  "discovering",
	StateAnnouncing:   "announcing",
	StateAwaitingOpen: "awaiting_open",
	StateOpened:       "opened",
	StateReady:        "ready",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateStandalone || s == StateReady || s == StateFailed
}

// Managed reports whether s belongs to the session manager branch.
func (s State) Managed() bool {
	return s >= StateDiscovering && s <= StateReady
}
