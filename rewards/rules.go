// Package rewards keeps each user's credit ledger and medal set.
//
// Credits are never set directly: they only move through Credit entries whose
// amount is fixed by the entry's reason, so an account's credits always equal
// ReportCredit*TotalReports + ResolveCredit*ResolvedReports. Medals derive from
// credits in the same write and are never taken away.
package rewards

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"civicpulse/models"
)

const (
	ReportCredit  int64 = 10
	ResolveCredit int64 = 10
	MedalStep     int64 = 100
)

// Ladder names the first medal tiers, one per MedalStep credits.
var Ladder = []string{"silver", "gold", "platinum", "diamond"}

type Reason string

const (
	ReasonSubmission Reason = "submission"
	ReasonResolution Reason = "resolution"
)

var (
	ErrInvalidCredit = errors.New("invalid credit entry")
	ErrEmptyKey      = errors.New("credit entry needs an idempotency key")
)

// Entry is one credit. Key makes the entry idempotent per account.
type Entry struct {
	OwnerID string
	Amount  int64
	Key     string
	Reason  Reason
}

// SubmissionEntry is the credit for a newly persisted report.
func SubmissionEntry(ownerID, reportID string) Entry {
	return Entry{OwnerID: ownerID, Amount: ReportCredit, Key: reportID, Reason: ReasonSubmission}
}

// ResolutionEntry is the credit for a resolved report. Its key is derived so
// it never collides with the submission credit of the same report.
func ResolutionEntry(ownerID, reportID string) Entry {
	return Entry{OwnerID: ownerID, Amount: ResolveCredit, Key: "resolve:" + reportID, Reason: ReasonResolution}
}

func (e Entry) Validate() error {
	if e.OwnerID == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidCredit)
	}
	if e.Key == "" {
		return ErrEmptyKey
	}
	switch e.Reason {
	case ReasonSubmission:
		if e.Amount != ReportCredit {
			return fmt.Errorf("%w: submission credit must be %d", ErrInvalidCredit, ReportCredit)
		}
	case ReasonResolution:
		if e.Amount != ResolveCredit {
			return fmt.Errorf("%w: resolution credit must be %d", ErrInvalidCredit, ResolveCredit)
		}
	default:
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidCredit, e.Reason)
	}
	return nil
}

// counters returns the (totalReports, resolvedReports) increments for e.
func (e Entry) counters() (int64, int64) {
	if e.Reason == ReasonResolution {
		return 0, 1
	}
	return 1, 0
}

// MedalFor names the medal for the k-th multiple of MedalStep (k >= 1).
func MedalFor(k int64) string {
	if k <= int64(len(Ladder)) {
		return Ladder[k-1]
	}
	return Ladder[len(Ladder)-1] + "_" + strconv.FormatInt(k*MedalStep, 10)
}

// MedalsFor lists every medal earned at the given credit total.
func MedalsFor(credits int64) []string {
	n := credits / MedalStep
	out := make([]string, 0, n)
	for k := int64(1); k <= n; k++ {
		out = append(out, MedalFor(k))
	}
	return out
}

// MergeMedals is the union of held and earned, in award order. Held medals
// are always kept.
func MergeMedals(held, earned []string) []string {
	set := make(map[string]bool, len(held)+len(earned))
	out := make([]string, 0, len(held)+len(earned))
	for _, list := range [][]string{held, earned} {
		for _, m := range list {
			if !set[m] {
				set[m] = true
				out = append(out, m)
			}
		}
	}
	SortMedals(out)
	return out
}

// SortMedals orders medals by the credit threshold that awards them.
func SortMedals(medals []string) {
	sort.SliceStable(medals, func(i, j int) bool { return medalRank(medals[i]) < medalRank(medals[j]) })
}

func medalRank(m string) int64 {
	for i, name := range Ladder {
		if m == name {
			return int64(i+1) * MedalStep
		}
	}
	prefix := Ladder[len(Ladder)-1] + "_"
	if strings.HasPrefix(m, prefix) {
		if v, err := strconv.ParseInt(strings.TrimPrefix(m, prefix), 10, 64); err == nil {
			return v
		}
	}
	return 1 << 62
}

// Apply returns acct with e applied. It is the reference rule the storage
// backends implement atomically.
func Apply(acct models.RewardAccount, e Entry) models.RewardAccount {
	total, resolved := e.counters()
	acct.OwnerID = e.OwnerID
	acct.Credits += e.Amount
	acct.TotalReports += total
	acct.ResolvedReports += resolved
	acct.Medals = MergeMedals(acct.Medals, MedalsFor(acct.Credits))
	return acct
}

// ExpectedCredits is the credit total implied by the report counters.
func ExpectedCredits(acct models.RewardAccount) int64 {
	return ReportCredit*acct.TotalReports + ResolveCredit*acct.ResolvedReports
}

// NextMilestone is the next credit total that awards a medal.
func NextMilestone(credits int64) int64 {
	return (credits/MedalStep + 1) * MedalStep
}
