package console

// TurnState is a stage of the turn state machine
type TurnState int

const (
	TurnIdle TurnState = iota
	TurnAwaitingFirstChunk
	TurnStreamingText
	TurnAwaitingApproval
	TurnResumingAfterApproval
	TurnSettled
	TurnAborted
	TurnFailed
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnAwaitingFirstChunk:
		return "awaiting-first-chunk"
	case TurnStreamingText:
		return "streaming-text"
	case TurnAwaitingApproval:
		return "awaiting-approval"
	case TurnResumingAfterApproval:
		return "resuming-after-approval"
	case TurnSettled:
		return "settled"
	case TurnAborted:
		return "aborted"
	case TurnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Final reports whether the turn has stopped consuming its stream
func (s TurnState) Final() bool {
	switch s {
	case TurnAwaitingApproval, TurnSettled, TurnAborted, TurnFailed:
		return true
	}
	return false
}

// liveTurn is the single cancellable handle an orchestrator holds
type liveTurn struct {
	seq       uint64
	sessionID string
	cancel    func()
}
