// path: models/reward.go
package models

import "time"

// RewardAccount is one user's credit totals. Credits always equal
// ReportCredit*TotalReports + ResolveCredit*ResolvedReports.
type RewardAccount struct {
	OwnerID         string    `bson:"owner_id" json:"owner_id"`
	Credits         int64     `bson:"credits" json:"credits"`
	TotalReports    int64     `bson:"total_reports" json:"total_reports"`
	ResolvedReports int64     `bson:"resolved_reports" json:"resolved_reports"`
	Medals          []string  `bson:"medals" json:"medals"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updated_at"`
}

func (a RewardAccount) HasMedal(m string) bool {
	for _, v := range a.Medals {
		if v == m {
			return true
		}
	}
	return false
}
