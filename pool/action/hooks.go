package action

// Stage names a point inside a commit or a replay where tests can stop
// the process as if it had crashed.
type Stage int

const (
	// StageLogged: records written and drained, marker not yet stored.
	StageLogged Stage = iota
	// StageCommitted: marker durable, nothing applied.
	StageCommitted
	// StageApplying: about to apply record i.
	StageApplying
	// StageApplied: every record applied and drained, marker still set.
	StageApplied
	// StageReplaying: recovery about to apply record i.
	StageReplaying
)

// crashHook, when set, is consulted at every Stage. Returning true stops
// the operation on the spot with errCrashed, leaving memory and volatile
// state exactly as they are.
var crashHook func(stage Stage, i int) bool

func crashAt(stage Stage, i int) bool {
	return crashHook != nil && crashHook(stage, i)
}
