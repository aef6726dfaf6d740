package schedsync

import (
	"fmt"
	"time"

	"rental-sync-backend/internal/model"
)

// Schedule is the scheduling platform's view of one turnover job.
type Schedule struct {
	JobID          string    `json:"jobId"`
	ScheduledStart time.Time `json:"scheduledStart"`
	WorkStatus     string    `json:"workStatus"`
}

// Verdict is the outcome of comparing a reservation's intended service time
// against the platform's schedule.
type Verdict struct {
	Status      model.SyncStatus
	Details     string
	EvaluatedAt time.Time
}

// Evaluate derives the sync verdict for one reservation. The calendar date is
// compared in the reference timezone first, the time of day second, so a job
// on the right day at the wrong hour reads wrong_time rather than wrong_date.
// Evaluate never mutates its inputs; callers persist the verdict.
func Evaluate(res *model.Reservation, sched *Schedule, loc *time.Location) Verdict {
	now := time.Now().UTC()

	if res.ExternalJobID == "" {
		return Verdict{Status: model.SyncNotCreated, Details: "no scheduling job linked", EvaluatedAt: now}
	}
	if sched == nil {
		return Verdict{
			Status:      model.SyncNotCreated,
			Details:     fmt.Sprintf("job %s not found on the scheduling platform", res.ExternalJobID),
			EvaluatedAt: now,
		}
	}
	if res.ServiceAt == nil {
		return Verdict{Status: model.SyncWrongDate, Details: "record carries no intended service time", EvaluatedAt: now}
	}

	expected := res.ServiceAt.In(loc)
	actual := sched.ScheduledStart.In(loc)
	details := fmt.Sprintf("expected %s, scheduled %s",
		expected.Format("2006-01-02 15:04 MST"), actual.Format("2006-01-02 15:04 MST"))

	ey, em, ed := expected.Date()
	ay, am, ad := actual.Date()
	switch {
	case ey != ay || em != am || ed != ad:
		return Verdict{Status: model.SyncWrongDate, Details: details, EvaluatedAt: now}
	case expected.Hour() != actual.Hour() || expected.Minute() != actual.Minute():
		return Verdict{Status: model.SyncWrongTime, Details: details, EvaluatedAt: now}
	default:
		return Verdict{Status: model.SyncSynced, Details: details, EvaluatedAt: now}
	}
}
