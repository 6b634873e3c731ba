package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/ui"
	"github.com/urfave/cli/v3"
)

// Health calls /health on the short tier and reports where the backend is served from.
func (r *Runner) Health(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	status, err := r.svc.Health.Check(ctx)
	if err != nil {
		region := r.svc.Health.DetectRegion(ctx)
		r.logger.Debug("health check failed", "err", err, "region", region.RegionName)
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	if status.Healthy() {
		r.writePlain("%s\n", ui.Styles.OK("Service is healthy"))
	} else {
		r.writePlain("%s\n", ui.Styles.Warn("Service reported %q", status.Status))
	}
	r.writePlain("%s\n", ui.Styles.Field("Host", status.HostID))
	r.writePlain("%s\n", ui.Styles.Field("IP", status.IP))
	if status.Region != "" {
		r.writePlain("%s\n", ui.Styles.Field("Region", fmt.Sprintf("%s (%s)", status.Region, status.Country)))
	}
	if !status.Timestamp.IsZero() {
		r.writePlain("%s\n", ui.Styles.Field("Server time", status.Timestamp.Local().Format(time.DateTime)))
	}
	return nil
}

// StatsUsage prints totals processed by the account.
func (r *Runner) StatsUsage(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	usage, err := r.svc.Stats.Usage(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(usage, true)
	}

	r.writePlain("%s\n", ui.Styles.Title("Usage"))
	r.writePlain("%s\n", ui.Styles.Field("Total", fmt.Sprintf("%d images, %s", usage.TotalImages, shared.FormatSize(usage.TotalSize))))
	r.writePlain("%s\n", ui.Styles.Field("This month", fmt.Sprintf("%d images, %s", usage.ImagesThisMonth, shared.FormatSize(usage.SizeThisMonth))))
	if usage.LastProcessedAt != nil {
		r.writePlain("%s\n", ui.Styles.Field("Last", usage.LastProcessedAt.Local().Format(time.DateTime)))
	}
	return nil
}

// StatsQuota prints plan limits and how much of them is used.
func (r *Runner) StatsQuota(ctx context.Context, cmd *cli.Command) error {
	if err := r.init(ctx); err != nil {
		return err
	}

	quota, err := r.svc.Stats.Quota(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(quota, true)
	}

	r.writePlain("%s\n", ui.Styles.Title("Quota"))
	r.writePlain("%s\n", ui.Styles.Field("Plan", quota.Plan))
	r.writePlain("%s\n", ui.Styles.Field("Monthly", fmt.Sprintf("%d/%d (%d left)", quota.UsedMonthly, quota.MonthlyLimit, quota.RemainingMonthly())))
	r.writePlain("%s\n", ui.Styles.Field("Storage", fmt.Sprintf("%s/%s (%.0f%%)",
		shared.FormatSize(quota.UsedStorage), shared.FormatSize(quota.StorageLimit), quota.StorageRatio()*100)))
	if !quota.ResetDate.IsZero() {
		r.writePlain("%s\n", ui.Styles.Field("Resets", quota.ResetDate.Local().Format(time.DateOnly)))
	}
	return nil
}
