package documents

import (
	"time"

	"github.com/meridian-gov/meridian/internal/authz"
)

// Document is a filing attached to a case. OwnerID is the uploading
// principal. AssignedJudgeID mirrors the owning case so judge scoping
// works without a second lookup.
type Document struct {
	ID              int64
	CaseID          int64
	Title           string
	MimeType        string
	StoragePath     string
	OwnerID         int64
	AssignedJudgeID int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Resource projects the document as an access-controlled resource.
func (d Document) Resource() authz.Resource {
	return authz.Resource{
		Type:            authz.ResourceDocument,
		ID:              d.ID,
		OwnerID:         d.OwnerID,
		AssignedJudgeID: d.AssignedJudgeID,
	}
}
