// path: models/report.go
package models

import (
	"time"
)

type IssueType string

const (
	IssuePothole     IssueType = "pothole"
	IssueStreetlight IssueType = "streetlight"
	IssueGarbage     IssueType = "garbage"
	IssueDrainage    IssueType = "drainage"
	IssueSignage     IssueType = "signage"
	IssueRoadDamage  IssueType = "road_damage"
	IssueOther       IssueType = "other"
)

var IssueTypes = []IssueType{
	IssuePothole, IssueStreetlight, IssueGarbage, IssueDrainage,
	IssueSignage, IssueRoadDamage, IssueOther,
}

func (t IssueType) Valid() bool {
	for _, v := range IssueTypes {
		if v == t {
			return true
		}
	}
	return false
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Status is ordered: a report only ever moves forward.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusResolved:
		return 2
	}
	return -1
}

func (s Status) Valid() bool { return s.rank() >= 0 }

// CanMoveTo reports whether s -> next is a forward transition.
func (s Status) CanMoveTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// Location is what crosses from the location provider into a submission.
type Location struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
	Address   string  `bson:"address,omitempty" json:"address,omitempty"`
}

func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

type Report struct {
	ID          string    `bson:"-" json:"id"`
	OwnerID     string    `bson:"owner_id" json:"owner_id"`
	EvidenceKey string    `bson:"evidence_key" json:"evidence_key"`
	EvidenceURL string    `bson:"evidence_url" json:"evidence_url"`
	Latitude    float64   `bson:"latitude" json:"latitude"`
	Longitude   float64   `bson:"longitude" json:"longitude"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	IssueType   IssueType `bson:"issue_type" json:"issue_type"`
	Urgency     Urgency   `bson:"urgency" json:"urgency"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Status      Status    `bson:"status" json:"status"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

// NewReport is the create payload; id, status and timestamps are assigned by the repository.
type NewReport struct {
	OwnerID     string
	EvidenceKey string
	EvidenceURL string
	Location    Location
	IssueType   IssueType
	Urgency     Urgency
	Description string
}
