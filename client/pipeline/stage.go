package pipeline

// Stage is a step of one submission
type Stage int

const (
	Idle Stage = iota
	Validating
	OptimisticallyAppended
	AwaitingCompletion
	Reconciling
	Revealing
	Settled
	Aborted
)

var stageNames = [...]string{
	Idle:                   "idle",
	Validating:             "validating",
	OptimisticallyAppended: "optimistically_appended",
	AwaitingCompletion:     "awaiting_completion",
	Reconciling:            "reconciling",
	Revealing:              "revealing",
	Settled:                "settled",
	Aborted:                "aborted",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition can happen
func (s Stage) Terminal() bool {
	return s == Settled || s == Aborted
}
