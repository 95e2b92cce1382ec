package purchase

// Phase is the monotonically advancing position of a purchase attempt within
// the orchestration pipeline. Phases execute strictly in order; each one is a
// gate that can short-circuit the attempt to a terminal failure.
type Phase int

const (
	PhasePreconditions Phase = iota + 1
	PhaseBalanceCheck
	PhaseSubmission
	PhaseConfirmation
	PhasePersistence
	PhaseCompletion
)

func (p Phase) String() string {
	switch p {
	case PhasePreconditions:
		return "preconditions"
	case PhaseBalanceCheck:
		return "balance-check"
	case PhaseSubmission:
		return "submission"
	case PhaseConfirmation:
		return "confirmation"
	case PhasePersistence:
		return "persistence"
	case PhaseCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// Event is a phase-transition notification for one purchase attempt. Events
// for a single attempt share the AttemptID, so a presentation layer can
// render the latest event per attempt (the original UI reused one toast this
// way). Err is set only on the terminal failure event.
type Event struct {
	AttemptID string
	AgentID   string
	Phase     Phase
	Message   string
	Terminal  bool
	Err       error
}

// Notifier receives phase-transition events.
type Notifier interface {
	Notify(event Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(event Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(event Event) { f(event) }

type noopNotifier struct{}

func (noopNotifier) Notify(Event) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
