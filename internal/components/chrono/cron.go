package chrono

import (
	"fmt"
	"lotwatch/internal/components/telemetry"
	"time"

	"github.com/robfig/cron/v3"
)

// CronAPI runs callbacks on cron schedules.
type CronAPI interface {
	Cron(spec string, callback func()) error
	Next() time.Time
	Stop()
}

// StandardCron runs jobs in the clock's location. A job still running
// when its next tick fires skips that tick, a panicking job is reported
// and the schedule keeps going.
type StandardCron struct {
	cron *cron.Cron
}

func NewStandardCron(clock API, tel telemetry.API) StandardCron {
	logger := cronLogger{tel: tel}
	cronner := cron.New(
		cron.WithLogger(logger),
		cron.WithLocation(clock.Location()),
		cron.WithChain(
			cron.Recover(logger),
			cron.SkipIfStillRunning(logger),
		),
	)
	cronner.Start()
	return StandardCron{cron: cronner}
}

// Cron accepts the standard five field spec and descriptors like
// "@every 30m".
func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	return err
}

// Next is the earliest upcoming run, zero when nothing is scheduled.
func (s StandardCron) Next() time.Time {
	var next time.Time
	for _, entry := range s.cron.Entries() {
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}

// Stop waits for running jobs to finish.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	tel telemetry.API
}

func (cronLogger) pairs(keysAndValues []any) []any {
	params := make([]any, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug("cron: "+msg, l.pairs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"cron.job",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.pairs(keysAndValues)...)...,
	)
}
