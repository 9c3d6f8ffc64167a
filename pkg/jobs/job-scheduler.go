package jobs

import (
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// JobScheduler runs a single job on a cron expression. Six-field
// expressions enable second-level scheduling.
type JobScheduler struct {
	scheduler *cron.Cron
	logger    *logrus.Entry
	entryID   cron.EntryID
}

func NewJobScheduler(logger *logrus.Entry, frequency string, job cron.Job) *JobScheduler {
	var scheduler *cron.Cron
	if strings.Count(frequency, " ") == 5 {
		logger.Warnf("cron expression '%s' schedules at second granularity", frequency)
		scheduler = cron.New(cron.WithSeconds())
	} else {
		scheduler = cron.New()
	}

	js := &JobScheduler{
		scheduler: scheduler,
		logger:    logger,
	}

	logger.Infof("scheduling job with cron expression: '%s'", frequency)
	entryID, err := scheduler.AddJob(frequency, job)
	if err != nil {
		logger.Errorf("could not schedule job: %v", err)
		return js
	}

	js.entryID = entryID
	return js
}

func (js *JobScheduler) Start() {
	js.scheduler.Start()
}

func (js *JobScheduler) Stop() {
	js.scheduler.Remove(js.entryID)
	<-js.scheduler.Stop().Done()
}
