package updater

// State is a step of one update run.
type State int

const (
	StateStart State = iota
	StateRootEnsured
	StateManifestLoaded
	StateBackedUp
	StateQuarantined
	StateExtracted
	StateManifestSaved
	StateDone
	StateRollingBack
	StateRecovered
	StateRecoveryFailed
)

var stateNames = [...]string{
	StateStart:          "start",
	StateRootEnsured:    "root_ensured",
	StateManifestLoaded: "manifest_loaded",
	StateBackedUp:       "backed_up",
	StateQuarantined:    "quarantined",
	StateExtracted:      "extracted",
	StateManifestSaved:  "manifest_saved",
	StateDone:           "done",
	StateRollingBack:    "rolling_back",
	StateRecovered:      "recovered",
	StateRecoveryFailed: "recovery_failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
