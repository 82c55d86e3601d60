package notify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
	"github.com/zulandar/foundry/internal/store"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// Summary renders a one-shot fleet digest from the database.
func Summary(db *gorm.DB) (string, error) {
	builders, err := store.Builders(db)
	if err != nil {
		return "", fmt.Errorf("notify: load builders: %w", err)
	}

	okCount, busy := 0, 0
	var disabled []string
	for _, b := range builders {
		if b.OK {
			okCount++
		} else {
			note := b.FailureNote
			if note == "" {
				note = "no reason recorded"
			}
			disabled = append(disabled, fmt.Sprintf("%s (%s)", b.Name, note))
		}
		if b.CurrentJob != "" {
			busy++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fleet digest: %d builders (%d ok, %d disabled), %d building\n",
		len(builders), okCount, len(builders)-okCount, busy)

	counts := map[string]int{}
	for _, status := range []string{models.JobWaiting, models.JobRunning, models.JobCancelling} {
		jobs, err := store.Jobs(db, status)
		if err != nil {
			return "", fmt.Errorf("notify: load %s jobs: %w", status, err)
		}
		counts[status] = len(jobs)
	}
	fmt.Fprintf(&sb, "Queue: %d waiting, %d running, %d cancelling",
		counts[models.JobWaiting], counts[models.JobRunning], counts[models.JobCancelling])

	if len(disabled) > 0 {
		fmt.Fprintf(&sb, "\nDisabled: %s", strings.Join(disabled, ", "))
	}
	return sb.String(), nil
}

// RunDigest delivers a fleet summary on the given cron schedule until ctx is
// cancelled. An unparseable schedule is logged and disables the digest.
func RunDigest(ctx context.Context, db *gorm.DB, schedule string, n Notifier) {
	for {
		d := nextCronDuration(schedule)
		if d == 0 {
			log.Printf("notify: bad digest schedule %q, digest disabled", schedule)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}

		text, err := Summary(db)
		if err != nil {
			log.Printf("notify: build digest: %v", err)
			continue
		}
		n.Digest(text)
	}
}
