package domain

// RoundKind distinguishes the two escalation tiers. Round 0 is always a
// designated-report round; every later round is an open-vote round.
type RoundKind string

const (
	RoundDesignatedReport RoundKind = "designated_report"
	RoundOpenVote         RoundKind = "open_vote"
)
