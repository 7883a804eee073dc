package domain

import "time"

// ContestStatus represents the lifecycle state of a contest. Transitions are
// strictly linear and never regress; see lifecycle.go for the table.
type ContestStatus string

const (
	ContestStatusUpcoming ContestStatus = "UPCOMING"
	ContestStatusActive   ContestStatus = "ACTIVE"
	ContestStatusSettling ContestStatus = "SETTLING"
	ContestStatusResolved ContestStatus = "RESOLVED"
	ContestStatusPaid     ContestStatus = "PAID"
)

// ContestCategory groups contests by round duration, mirroring the filter
// chips the client renders.
type ContestCategory string

const (
	CategoryOneMinute      ContestCategory = "ONE_MINUTE"
	CategoryFifteenMinutes ContestCategory = "FIFTEEN_MINUTES"
	CategoryOneHour        ContestCategory = "ONE_HOUR"
)

// Contest is a betting event grouping one or more rounds. Entry fees are
// pooled per contest and distributed to the leaderboard when the contest
// reaches PAID.
type Contest struct {
	ID                   string          `json:"id"`
	Category             ContestCategory `json:"contestCategory"`
	Name                 string          `json:"name,omitempty"`
	Description          string          `json:"description,omitempty"`
	EntryFee             Ticks           `json:"entryFee"`
	RoundDurationSeconds int             `json:"roundDurationSeconds"`
	StartTime            time.Time       `json:"startTime"`
	EndTime              time.Time       `json:"endTime"`
	Status               ContestStatus   `json:"status"`
	EscrowContractAddr   string          `json:"escrowContractAddress,omitempty"`
	EscrowContestID      int64           `json:"escrowContestId,omitempty"`
	ParticipantCount     int             `json:"participantCount"`
	RoundCount           int             `json:"roundCount"`
	CreatedAt            time.Time       `json:"-"`
	UpdatedAt            time.Time       `json:"-"`
}

// OnChain reports whether entry fees for this contest are deposited through
// the escrow contract rather than custodially.
func (c Contest) OnChain() bool {
	return c.EscrowContractAddr != ""
}

// ContestDetail is the nested shape served by GET /api/contests/{id}.
type ContestDetail struct {
	Contest Contest `json:"contest"`
	Rounds  []Round `json:"rounds"`
}
