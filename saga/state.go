package saga

type State int

const (
	Drafting State = iota
	LocationAcquired
	EvidenceUploaded
	Verifying
	Verified
	Persisted
	Credited
	Compensating
	Aborted
)

var stateNames = [...]string{
	Drafting:         "drafting",
	LocationAcquired: "location_acquired",
	EvidenceUploaded: "evidence_uploaded",
	Verifying:        "verifying",
	Verified:         "verified",
	Persisted:        "persisted",
	Credited:         "credited",
	Compensating:     "compensating",
	Aborted:          "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends a run. A run can also halt early, in
// Drafting on a precondition failure or in Persisted on a ledger failure.
func (s State) Terminal() bool {
	return s == Credited || s == Aborted
}
