package domain

import "time"

// RoundStatus mirrors the contest lifecycle at round granularity.
type RoundStatus string

const (
	RoundStatusUpcoming RoundStatus = "UPCOMING"
	RoundStatusOpen     RoundStatus = "OPEN"
	RoundStatusLocked   RoundStatus = "LOCKED"
	RoundStatusResolved RoundStatus = "RESOLVED"
)

// Round is a fixed-duration slice of a contest containing the basket of
// markets a bettor predicts simultaneously. Rounds are owned exclusively by
// their contest and numbered from 1 upward.
type Round struct {
	ID               string      `json:"id"`
	ContestID        string      `json:"contestId"`
	RoundNumber      int         `json:"roundNumber"`
	StartTime        time.Time   `json:"startTime"`
	EndTime          time.Time   `json:"endTime"`
	Status           RoundStatus `json:"status"`
	ParticipantCount int         `json:"participantCount"`
	Markets          []Market    `json:"markets"`
	CreatedAt        time.Time   `json:"-"`
	UpdatedAt        time.Time   `json:"-"`
}

// MarketIDs returns the IDs of every market in the round, in slice order.
func (r Round) MarketIDs() []string {
	ids := make([]string, 0, len(r.Markets))
	for _, m := range r.Markets {
		ids = append(ids, m.ID)
	}
	return ids
}
