package cases

import (
	"time"

	"github.com/meridian-gov/meridian/internal/authz"
)

// Status enumerates the lifecycle states of a case.
type Status string

const (
	StatusOpen     Status = "open"
	StatusInReview Status = "in_review"
	StatusClosed   Status = "closed"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInReview, StatusClosed:
		return true
	}
	return false
}

// Case is a filed legal case. OwnerID is the filing principal;
// AssignedJudgeID is zero until a judge is assigned.
type Case struct {
	ID              int64
	Number          string
	Title           string
	Description     string
	Status          Status
	OwnerID         int64
	AssignedJudgeID int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Resource projects the case as an access-controlled resource.
func (c Case) Resource() authz.Resource {
	return authz.Resource{
		Type:            authz.ResourceCase,
		ID:              c.ID,
		OwnerID:         c.OwnerID,
		AssignedJudgeID: c.AssignedJudgeID,
		Status:          string(c.Status),
	}
}

// Filter narrows case listings.
type Filter struct {
	Status  Status
	Page    int
	PerPage int
}
