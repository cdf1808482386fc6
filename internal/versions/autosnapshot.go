package versions

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"sitebuilder/internal/domain"
)

const AutoTag = "auto"

// AutoSnapshotter takes a tagged snapshot on a cron schedule whenever the
// page changed since the previous one.
type AutoSnapshotter struct {
	m       *Manager
	cron    *cron.Cron
	timeout time.Duration
	log     *log.Logger
}

// NewAutoSnapshotter validates expr (standard 5-field cron or a descriptor
// such as "@every 10m") and registers the job. Call Start to run it.
func NewAutoSnapshotter(m *Manager, expr string, l *log.Logger) (*AutoSnapshotter, error) {
	if l == nil {
		l = log.Default()
	}
	a := &AutoSnapshotter{m: m, cron: cron.New(), timeout: time.Minute, log: l.WithPrefix("auto-snapshot")}
	if _, err := a.cron.AddFunc(expr, a.tick); err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, err, "cron expression %q", expr)
	}
	return a, nil
}

func (a *AutoSnapshotter) Start() {
	a.cron.Start()
	a.log.Debug("scheduled", "entries", len(a.cron.Entries()))
}

// Stop halts the schedule and waits for a running snapshot to finish.
func (a *AutoSnapshotter) Stop() {
	<-a.cron.Stop().Done()
}

func (a *AutoSnapshotter) tick() {
	if !a.m.Changed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	v, err := a.m.Snapshot(ctx, "", "automatic snapshot", AutoTag)
	switch {
	case domain.IsCode(err, domain.ErrCodeBusy):
		a.log.Debug("skipped, version operation running")
	case err != nil:
		a.log.Error("snapshot failed", "err", err)
	default:
		a.log.Info("snapshot taken", "version", v.Version)
	}
}
