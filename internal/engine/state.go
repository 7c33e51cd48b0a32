package engine

// State is the engine's per-session sync state.
//
//	Anonymous --identity acquired--> Merging --commit--> Synced
//	Synced --mutation--> Dirty --debounced push ok--> Synced
//	Dirty --push failed--> PendingRetry --retry ok--> Synced
//	Synced/Dirty --offline--> Offline --online--> Merging
type State int

const (
	StateAnonymous State = iota
	StateMerging
	StateSynced
	StateDirty
	StatePendingRetry
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateMerging:
		return "merging"
	case StateSynced:
		return "synced"
	case StateDirty:
		return "dirty"
	case StatePendingRetry:
		return "pending-retry"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}
