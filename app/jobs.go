package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// StartJobs 启动定时任务：逾期扫描
func (a *App) StartJobs() error {
	loc, err := time.LoadLocation(a.Config.Timezone)
	if err != nil {
		zap.S().Warnf("timezone %q: %v, using local", a.Config.Timezone, err)
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	if _, err := a.sched.AddFunc(a.Config.SweepSpec, a.SchedOverdueSweep); err != nil {
		return err
	}
	a.sched.Start()
	zap.S().Infof("overdue sweep scheduled: %s", a.Config.SweepSpec)
	return nil
}

// SchedOverdueSweep 单次逾期扫描，错误只记日志
func (a *App) SchedOverdueSweep() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*a.Config.BatchWait+time.Minute)
	defer cancel()
	if _, err := a.Ledger.SweepOverdue(ctx); err != nil {
		zap.S().Errorf("overdue sweep: %v", err)
	}
}
