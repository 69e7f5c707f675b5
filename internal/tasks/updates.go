package tasks

import "fmt"

// State enumerates the orchestrator's states. A run walks them in order;
// Failed is terminal and reachable from any step.
type State int

const (
	Idle State = iota
	FetchingHistory
	Ranking
	Publishing
	Notifying
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FetchingHistory:
		return "fetching_history"
	case Ranking:
		return "ranking"
	case Publishing:
		return "publishing"
	case Notifying:
		return "notifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// ProgressUpdate represents a state transition during a run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	State   State  // State being entered
	Message string // Human-readable message for display
}

func fetchingHistoryUpdate() ProgressUpdate {
	return ProgressUpdate{State: FetchingHistory, Message: "Fetching recent listening history..."}
}

func rankingUpdate(eventCount int) ProgressUpdate {
	return ProgressUpdate{State: Ranking, Message: fmt.Sprintf("Ranking %d play events...", eventCount)}
}

func publishingUpdate(name string) ProgressUpdate {
	return ProgressUpdate{State: Publishing, Message: "Publishing playlist " + name + "..."}
}

func notifyingUpdate() ProgressUpdate {
	return ProgressUpdate{State: Notifying, Message: "Sending reminder email..."}
}

func doneUpdate(detail string) ProgressUpdate {
	return ProgressUpdate{State: Done, Message: detail}
}

func failedUpdate(detail string) ProgressUpdate {
	return ProgressUpdate{State: Failed, Message: detail}
}
