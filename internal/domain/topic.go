package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Topic outcome limits enforced at construction.
const (
	MinOutcomes = 2
	MaxOutcomes = 10
)

// TopicStatus represents the lifecycle state of a topic. Transitions are
// monotonic: Betting -> Reporting -> Finalized.
type TopicStatus string

const (
	TopicStatusBetting   TopicStatus = "betting"
	TopicStatusReporting TopicStatus = "reporting"
	TopicStatusFinalized TopicStatus = "finalized"
)

// TopicParams are the immutable construction parameters of a topic. Deadlines
// are ordinal block heights, not wall-clock times.
type TopicParams struct {
	ID                string         `json:"id"`
	Question          string         `json:"question"`
	Outcomes          []string       `json:"outcomes"`
	BettingDeadline   uint64         `json:"betting_deadline"`
	ReportingDeadline uint64         `json:"reporting_deadline"`
	Reporter          common.Address `json:"reporter"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Topic is the persisted summary record of one resolution instance. The full
// ledger and round state is serialized separately as a state blob.
type Topic struct {
	ID                string
	Question          string
	Outcomes          []string
	BettingDeadline   uint64
	ReportingDeadline uint64
	Reporter          common.Address
	Status            TopicStatus
	CurrentOutcome    *int
	FinalOutcome      *int
	Pool              *big.Int
	Round             int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ResolutionParams is the configuration snapshot a topic captures at
// construction time. Topics never consult a live registry after creation.
type ResolutionParams struct {
	// MinReportStake is the minimum token stake the designated reporter
	// must post alongside a report.
	MinReportStake *big.Int `json:"min_report_stake"`

	// BaseThreshold is the consensus threshold of the first open-vote round.
	BaseThreshold *big.Int `json:"base_threshold"`

	// EscalationFactor multiplies the threshold of each successive
	// open-vote round. Must be >= 2 so escalation is strictly monotonic.
	EscalationFactor uint64 `json:"escalation_factor"`

	// VotingPeriod is the number of heights an open-vote round stays open.
	VotingPeriod uint64 `json:"voting_period"`

	// ArbitrationWindow is the number of heights a concluded outcome must
	// survive unchallenged before the chain may finalize.
	ArbitrationWindow uint64 `json:"arbitration_window"`
}
