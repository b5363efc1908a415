// Package backup implements best-effort async archival of terminal
// ExecutionPlan and BalanceSnapshot rows to an S3-compatible bucket,
// archiving typed rows instead of whole SQLite files.
package backup

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/rpcp/internal/clock"
	"github.com/aristath/rpcp/internal/domain"
	"github.com/aristath/rpcp/internal/store"
)

// Archiver periodically uploads a gzip-compressed JSON snapshot of every
// terminal plan and balance snapshot to S3. Failures are logged and never
// propagated: backup is a convenience, never on the critical path of any
// control loop (ambient-stack rule that reliability services never
// become fatal to the core system).
type Archiver struct {
	store *store.Store
	clk clock.Clock
	client *s3.Client
	bucket string
	period time.Duration
	log zerolog.Logger
}

// New loads default AWS config (region/credentials from the environment)
// and constructs an Archiver. Returns an error only
// if the SDK itself fails to resolve a config; a missing bucket/credentials
// is a runtime no-op handled by Run logging and skipping each tick.
func New(ctx context.Context, st *store.Store, clk clock.Clock, bucket, region string, period time.Duration, log zerolog.Logger) (*Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
 return nil, fmt.Errorf("backup: load aws config: %w", err)
	}
	return &Archiver{
 store: st, clk: clk, client: s3.NewFromConfig(cfg), bucket: bucket, period: period,
 log: log.With().Str("component", "backup").Logger(),
	}, nil
}

// Run uploads a snapshot every period until ctx is cancelled. A disabled
// (empty bucket) Archiver simply logs once and returns, rather than ticking
// forever against a destination that will never accept an upload.
func (a *Archiver) Run(ctx context.Context) {
	if a.bucket == "" {
 a.log.Info().Msg("backup disabled, no bucket configured")
 return
	}
	ticker := a.clk.NewTicker(a.period, a.period/10)
	defer ticker.Stop()
	for {
 select {
 case <-ctx.Done():
 return
 case <-ticker.C():
 if err := a.archiveOnce(ctx); err != nil {
 a.log.Error().Err(err).Msg("backup archive failed")
 }
 }
	}
}

type archiveBundle struct {
	Timestamp time.Time `json:"timestamp"`
	Plans []domain.ExecutionPlan `json:"plans"`
	Snapshots []domain.BalanceSnapshot `json:"snapshots"`
}

func (a *Archiver) archiveOnce(ctx context.Context) error {
	now := a.clk.Now()
	plans, err := a.store.TerminalPlansSince(ctx, now.Add(-a.period*2))
	if err != nil {
 return fmt.Errorf("backup: load plans: %w", err)
	}
	snapshots, err := a.store.LatestBalanceSnapshots(ctx)
	if err != nil {
 return fmt.Errorf("backup: load snapshots: %w", err)
	}

	bundle := archiveBundle{Timestamp: now, Plans: plans, Snapshots: snapshots}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(bundle); err != nil {
 return fmt.Errorf("backup: encode bundle: %w", err)
	}
	if err := gz.Close(); err != nil {
 return fmt.Errorf("backup: flush gzip: %w", err)
	}

	key := fmt.Sprintf("rpcp-backup-%s.json.gz", now.Format("2006-01-02-150405"))
	uploader := manager.NewUploader(a.client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
 Bucket: aws.String(a.bucket),
 Key: aws.String(key),
 Body: &buf,
	})
	if err != nil {
 return fmt.Errorf("backup: upload %s: %w", key, err)
	}
	a.log.Info().Str("key", key).Int("plans", len(plans)).Int("snapshots", len(snapshots)).Msg("backup archive uploaded")
	return nil
}
