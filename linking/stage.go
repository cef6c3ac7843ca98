package linking

// Stage is the furthest point a callback reached.
type Stage int

const (
	StageAwaitingRedirect Stage = iota
	StageStateDecoded
	StageSessionResolved
	StageStateVerified
	StageTokenExchanged
	StageChallengeIssued
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingRedirect:
		return "awaiting_redirect"
	case StageStateDecoded:
		return "state_decoded"
	case StageSessionResolved:
		return "session_resolved"
	case StageStateVerified:
		return "state_verified"
	case StageTokenExchanged:
		return "token_exchanged"
	case StageChallengeIssued:
		return "challenge_issued"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}
