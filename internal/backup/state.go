package backup

import (
	"log/slog"

	"github.com/sznuper/stackback/internal/report"
)

// State is a phase in the processing of one stack.
type State string

const (
	Pending       State = "PENDING"
	Stopping      State = "STOPPING"
	Stopped       State = "STOPPED"
	StopFailed    State = "STOP_FAILED"
	Archiving     State = "ARCHIVING"
	Archived      State = "ARCHIVED"
	ArchiveFailed State = "ARCHIVE_FAILED"
	Starting      State = "STARTING"
	Started       State = "STARTED"
	StartFailed   State = "START_FAILED"
	Done          State = "DONE"
)

// transitions lists the states reachable from each state. Every path
// passes through STARTING, so a stack that was touched is always restarted.
var transitions = map[State][]State{
	Pending:       {Stopping},
	Stopping:      {Stopped, StopFailed},
	Stopped:       {Archiving},
	StopFailed:    {Starting},
	Archiving:     {Archived, ArchiveFailed},
	Archived:      {Starting},
	ArchiveFailed: {Starting},
	Starting:      {Started, StartFailed},
	Started:       {Done},
	StartFailed:   {Done},
}

// CanTransition reports whether from → to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine drives one StackResult through its states.
type machine struct {
	state State
	res   *report.StackResult
	log   *slog.Logger
}

func newMachine(res *report.StackResult, log *slog.Logger) *machine {
	res.States = append(res.States, string(Pending))
	return &machine{state: Pending, res: res, log: log}
}

// to moves the machine to next. An illegal step is logged and refused so the
// stack keeps heading for STARTING.
func (m *machine) to(next State) bool {
	if !CanTransition(m.state, next) {
		m.log.Error("illegal stack transition refused", "from", m.state, "to", next)
		return false
	}
	m.log.Info("stack state", "from", m.state, "to", next)
	m.state = next
	m.res.States = append(m.res.States, string(next))
	return true
}
