// Package sweep removes records whose purge grace period has expired.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// Defaults for a Sweeper.
const (
	DefaultRetention = 7 * 24 * time.Hour
	DefaultBatchSize = 200
)

// Result summarizes one sweep. In a dry run the counts describe what an
// applying run would remove.
type Result struct {
	Attachments    int   `json:"attachments"`
	Candidates     int   `json:"candidates"`
	Deleted        int   `json:"deleted"`
	Failed         int   `json:"failed"`
	Skipped        int   `json:"skipped"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// Config configures a Sweeper.
type Config struct {
	Repository socialcontent.Repository
	Store      *socialcontent.ContentStore
	Retention  time.Duration
	BatchSize  int
	Logger     *slog.Logger
	Now        func() time.Time
}

// Sweeper deletes attachments and files that have been pending purge for
// longer than the retention period.
type Sweeper struct {
	repo      socialcontent.Repository
	store     *socialcontent.ContentStore
	retention time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Sweeper.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if cfg.Retention < 0 {
		return nil, fmt.Errorf("retention must not be negative")
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Sweeper{
		repo:      cfg.Repository,
		store:     cfg.Store,
		retention: cfg.Retention,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Run sweeps records marked at or before now minus the retention. Expired
// attachments go first so the files they held can be released in the same
// run. Files still referenced are skipped; files whose bytes cannot be
// deleted are counted as failed and kept for the next run.
func (s *Sweeper) Run(ctx context.Context, apply bool) (Result, error) {
	result := Result{DryRun: !apply}
	cutoff := s.now().UTC().Add(-s.retention)

	attachments, err := s.repo.ListExpiredAttachments(ctx, cutoff, 0)
	if err != nil {
		return result, fmt.Errorf("list expired attachments: %w", err)
	}
	result.Attachments = len(attachments)
	if apply {
		for start := 0; start < len(attachments); start += s.batchSize {
			batch := attachments[start:min(start+s.batchSize, len(attachments))]
			ids := make([]uuid.UUID, len(batch))
			for i, a := range batch {
				ids[i] = a.ID
			}
			if err := s.repo.DeleteAttachments(ctx, ids); err != nil {
				return result, fmt.Errorf("delete expired attachments: %w", err)
			}
		}
	}

	files, err := s.repo.ListExpiredFiles(ctx, cutoff, 0)
	if err != nil {
		return result, fmt.Errorf("list expired files: %w", err)
	}
	if !apply {
		return s.plan(ctx, result, files)
	}

	// Purging a file can release its cover, so retry the remainder until a
	// round makes no progress.
	remaining := files
	for len(remaining) > 0 {
		var next []*socialcontent.StoredFile
		progress := false
		for start := 0; start < len(remaining); start += s.batchSize {
			batch := remaining[start:min(start+s.batchSize, len(remaining))]
			deleted, failed, skipped, err := s.purgeBatch(ctx, batch)
			if err != nil {
				return result, err
			}
			result.Candidates += len(batch) - len(skipped)
			result.Failed += len(failed)
			for _, f := range deleted {
				result.Deleted++
				result.ReclaimedBytes += payloadBytes(f)
			}
			progress = progress || len(deleted) > 0
			next = append(next, skipped...)
		}
		if !progress {
			result.Skipped = len(next)
			break
		}
		remaining = next
	}

	s.logger.Info("sweep finished",
		"attachments", result.Attachments,
		"deleted", result.Deleted,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"reclaimed_bytes", result.ReclaimedBytes)
	return result, nil
}

// plan fills a dry-run result. References held by pending records are
// ignored since an applying run would remove most of them first.
func (s *Sweeper) plan(ctx context.Context, result Result, files []*socialcontent.StoredFile) (Result, error) {
	refs, err := s.repo.ReferencedFileIDs(ctx, fileIDs(files), true)
	if err != nil {
		return result, fmt.Errorf("check file references: %w", err)
	}
	for _, f := range files {
		if refs[f.ID] {
			result.Skipped++
			continue
		}
		result.Candidates++
		result.ReclaimedBytes += payloadBytes(f)
	}
	return result, nil
}

func (s *Sweeper) purgeBatch(ctx context.Context, batch []*socialcontent.StoredFile) (deleted, failed, skipped []*socialcontent.StoredFile, err error) {
	refs, err := s.repo.ReferencedFileIDs(ctx, fileIDs(batch), false)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("check file references: %w", err)
	}
	var candidates []*socialcontent.StoredFile
	for _, f := range batch {
		if refs[f.ID] {
			skipped = append(skipped, f)
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil, nil, skipped, nil
	}

	if purgeErr := s.store.Purge(ctx, fileIDs(candidates)); purgeErr != nil {
		s.logger.Warn("sweep could not purge every file", "error", purgeErr)
	}
	left, err := s.repo.GetFiles(ctx, fileIDs(candidates))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("verify purge: %w", err)
	}
	kept := make(map[uuid.UUID]bool, len(left))
	for _, f := range left {
		kept[f.ID] = true
	}
	for _, f := range candidates {
		if kept[f.ID] {
			failed = append(failed, f)
		} else {
			deleted = append(deleted, f)
		}
	}
	return deleted, failed, skipped, nil
}

func payloadBytes(f *socialcontent.StoredFile) int64 {
	if !f.Category.HasPhysicalPayload() {
		return 0
	}
	return f.SizeBytes
}

func fileIDs(files []*socialcontent.StoredFile) []uuid.UUID {
	ids := make([]uuid.UUID, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}
