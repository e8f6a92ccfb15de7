package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind identifies an observable side effect of a resolution operation.
type EventKind string

const (
	EventBetPlaced      EventKind = "bet_placed"
	EventVoteRecorded   EventKind = "vote_recorded"
	EventRoundOpened    EventKind = "round_opened"
	EventRoundConcluded EventKind = "round_concluded"
	EventChainFinalized EventKind = "chain_finalized"
	EventShareWithdrawn EventKind = "share_withdrawn"
)

// Event is a single resolution event, emitted by the core and persisted to
// the append-only event log for the surrounding system to index.
type Event struct {
	ID          string         `json:"id"`
	TopicID     string         `json:"topic_id"`
	Kind        EventKind      `json:"kind"`
	Participant common.Address `json:"participant"`
	Outcome     int            `json:"outcome"`
	Amount      *big.Int       `json:"amount"`
	Round       int            `json:"round"`
	Height      uint64         `json:"height"`
	CreatedAt   time.Time      `json:"created_at"`
}
