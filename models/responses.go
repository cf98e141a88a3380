// path: models/responses.go
package models

// LocateRequest is the request body for POST /api/locate.
type LocateRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocateResponse is the response body for POST /api/locate.
type LocateResponse struct {
	Label   string `json:"label"`
	Address string `json:"address,omitempty"`
}

type CreateReportResp struct {
	OK             bool    `json:"ok"`
	ID             string  `json:"id,omitempty"`
	CreditsAwarded int64   `json:"credits_awarded"`
	CreditPending  bool    `json:"credit_pending,omitempty"`
	Verified       bool    `json:"verified"`
	Confidence     float64 `json:"confidence,omitempty"`
}

type ReportListResp struct {
	OK         bool     `json:"ok"`
	Items      []Report `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type StatusUpdateRequest struct {
	Status Status `json:"status"`
}

type RewardResp struct {
	OK            bool          `json:"ok"`
	Account       RewardAccount `json:"account"`
	NextMilestone int64         `json:"next_milestone"`
}
