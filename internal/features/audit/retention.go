package audit

import (
	"context"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RetentionJob trims the trail to the configured retention window once a
// day. A retention of zero disables the job entirely.
type RetentionJob struct {
	service AuditService
	cfg     *config.Config
	log     *zap.Logger
	cron    *cron.Cron
}

func NewRetentionJob(lc fx.Lifecycle, service AuditService, cfg *config.Config, log *zap.Logger) *RetentionJob {
	job := &RetentionJob{
		service: service,
		cfg:     cfg,
		log:     log,
		cron:    cron.New(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.AuditRetentionDays <= 0 {
				log.Info("audit retention disabled")
				return nil
			}
			if _, err := job.cron.AddFunc("@daily", job.run); err != nil {
				return err
			}
			job.cron.Start()
			log.Info("audit retention scheduled",
				zap.Int("retention_days", cfg.AuditRetentionDays))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := job.cron.Stop()
			<-stopped.Done()
			return nil
		},
	})

	return job
}

func (j *RetentionJob) run() {
	ctx := context.WithValue(context.Background(), common_models.RequestMetaKey, common_models.RequestMeta{
		Source: "job:audit_retention",
	})

	deleted, err := j.service.Purge(ctx, j.cfg.AuditRetentionDays)
	if err != nil {
		j.log.Error("audit retention run failed", zap.Error(err))
		return
	}
	j.log.Info("audit retention run complete", zap.Int64("deleted", deleted))
}
