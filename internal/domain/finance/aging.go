package finance

import "time"

// AgingBucket is an overdue-severity band
type AgingBucket string

const (
	BucketNotDue     AgingBucket = "Not Due"
	BucketDueToday   AgingBucket = "Due Today"
	Bucket1To30      AgingBucket = "1-30 Days"
	Bucket31To60     AgingBucket = "31-60 Days"
	BucketOver60     AgingBucket = "60+ Days"
)

const oneDay = 24 * time.Hour

// AgingBuckets lists the buckets in report order
var AgingBuckets = []AgingBucket{BucketNotDue, BucketDueToday, Bucket1To30, Bucket31To60, BucketOver60}

// AgingResult is the classification of a due date at an instant
type AgingResult struct {
	DaysOverdue int         `json:"days_overdue"`
	Bucket      AgingBucket `json:"bucket"`
}

// Classify maps a due date and the current instant to an aging bucket. A nil
// due date is never overdue. Partial days past due count as a full day.
// Payables and receivables share this function.
func Classify(dueDate *time.Time, now time.Time) AgingResult {
	if dueDate == nil {
		return AgingResult{Bucket: BucketNotDue}
	}
	due := *dueDate
	if !now.After(due) {
		if sameDay(now, due) {
			return AgingResult{Bucket: BucketDueToday}
		}
		return AgingResult{Bucket: BucketNotDue}
	}

	late := now.Sub(due)
	days := int(late / oneDay)
	if late%oneDay != 0 {
		days++
	}
	switch {
	case days <= 30:
		return AgingResult{DaysOverdue: days, Bucket: Bucket1To30}
	case days <= 60:
		return AgingResult{DaysOverdue: days, Bucket: Bucket31To60}
	default:
		return AgingResult{DaysOverdue: days, Bucket: BucketOver60}
	}
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
