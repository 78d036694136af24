package socialcontent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Fan-out and paging defaults.
const (
	DefaultFanoutBatchSize   = 500
	DefaultFanoutConcurrency = 4
	DefaultPageSize          = 20
	MaxPageSize              = 100
)

// PropagationResult summarizes one Propagate call.
type PropagationResult struct {
	PostID      uuid.UUID   `json:"post_id"`
	Followers   int         `json:"followers"`
	Delivered   int         `json:"delivered"`
	Inserted    int         `json:"inserted"`
	Undelivered []uuid.UUID `json:"undelivered,omitempty"`
}

// FeedFanoutConfig configures a FeedFanout.
type FeedFanoutConfig struct {
	Graph           SocialGraph
	Feed            FeedRepository
	Posts           PostRepository
	Recommendations RecommendationSource
	BatchSize       int
	Concurrency     int
	Logger          *slog.Logger
	Now             func() time.Time
}

// FeedFanout materializes posts into follower feeds on write and merges them
// with recommendations on read.
type FeedFanout struct {
	graph       SocialGraph
	feed        FeedRepository
	posts       PostRepository
	recs        RecommendationSource
	batchSize   int
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// NewFeedFanout creates a FeedFanout.
func NewFeedFanout(cfg FeedFanoutConfig) (*FeedFanout, error) {
	if cfg.Graph == nil {
		return nil, fmt.Errorf("social graph is required")
	}
	if cfg.Feed == nil {
		return nil, fmt.Errorf("feed repository is required")
	}
	if cfg.Posts == nil {
		return nil, fmt.Errorf("post repository is required")
	}
	if cfg.Recommendations == nil {
		cfg.Recommendations = NoopRecommendations{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultFanoutBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultFanoutConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &FeedFanout{
		graph:       cfg.Graph,
		feed:        cfg.Feed,
		posts:       cfg.Posts,
		recs:        cfg.Recommendations,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}, nil
}

// Propagate writes a feed entry for post into the feed of every follower of
// its author. Repeated calls add nothing already present. Batches that fail
// are reported through a *PartialFailureError; delivered entries are kept.
func (f *FeedFanout) Propagate(ctx context.Context, post *Post) (*PropagationResult, error) {
	followers, err := f.graph.ListFollowers(ctx, post.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("%w: list followers of %s: %w", ErrFanoutFailed, post.AuthorID, err)
	}
	followers = uniqueIDs(followers)

	result := &PropagationResult{PostID: post.ID, Followers: len(followers)}
	if len(followers) == 0 {
		return result, nil
	}

	now := f.now().UTC()
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(f.concurrency)
	for start := 0; start < len(followers); start += f.batchSize {
		batch := followers[start:min(start+f.batchSize, len(followers))]
		g.Go(func() error {
			entries := make([]*FeedEntry, len(batch))
			for i, owner := range batch {
				entries[i] = &FeedEntry{
					OwnerID:       owner,
					PostID:        post.ID,
					PostCreatedAt: post.CreatedAt,
					CreatedAt:     now,
				}
			}
			inserted, err := f.feed.InsertFeedEntries(ctx, entries)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				result.Undelivered = append(result.Undelivered, batch...)
				return nil
			}
			result.Delivered += len(batch)
			result.Inserted += inserted
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		f.logger.Warn("partial feed propagation",
			"post_id", post.ID,
			"delivered", result.Delivered,
			"undelivered", len(result.Undelivered))
		return result, &PartialFailureError{
			PostID:      post.ID,
			Delivered:   result.Delivered,
			Undelivered: result.Undelivered,
			Err:         errors.Join(errs...),
		}
	}
	f.logger.Debug("post propagated", "post_id", post.ID, "followers", result.Followers, "inserted", result.Inserted)
	return result, nil
}

// Read returns one merged feed page. A nil viewer reads recommendations only.
// Both sources are paged independently, merged without duplicates and sorted
// newest post first. When recommendations fail the follower portion is
// returned with Degraded set.
func (f *FeedFanout) Read(ctx context.Context, viewer *uuid.UUID, page PageRequest) (*FeedPage, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	var (
		entries     []*FeedEntry
		feedTotal   int64
		followPosts []*Post
	)
	if viewer != nil {
		entries, feedTotal, err = f.feed.ListFeedEntries(ctx, *viewer, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list feed of %s: %w", *viewer, err)
		}
		if len(entries) > 0 {
			ids := make([]uuid.UUID, len(entries))
			for i, e := range entries {
				ids[i] = e.PostID
			}
			followPosts, err = f.posts.FindPostsByIDs(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("failed to load feed posts: %w", err)
			}
		}
	}

	degraded := false
	recPosts, recTotal, err := f.recs.Recommend(ctx, viewer, page)
	if err != nil {
		f.logger.Warn("recommendations unavailable", "error", err)
		degraded = true
		recPosts, recTotal = nil, 0
	}

	items := mergeFeed(followPosts, recPosts)
	offset := int64(page.Offset())
	return &FeedPage{
		Items:       items,
		Page:        page.Page,
		Size:        page.Size,
		Total:       feedTotal + recTotal,
		HasNext:     offset+int64(len(entries)) < feedTotal || offset+int64(len(recPosts)) < recTotal,
		HasPrevious: page.Page > 0,
		Degraded:    degraded,
	}, nil
}

// mergeFeed combines follower and recommended posts, keeping the follower
// copy of a post present in both, drops removed posts and orders the result
// by creation time descending with post id as tie breaker.
func mergeFeed(followed, recommended []*Post) []FeedItem {
	items := make([]FeedItem, 0, len(followed)+len(recommended))
	seen := make(map[uuid.UUID]bool, cap(items))
	add := func(posts []*Post, rec bool) {
		for _, p := range posts {
			if p == nil || p.State == EditorialStateRemoved || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			items = append(items, FeedItem{Post: p, Recommended: rec})
		}
	}
	add(followed, false)
	add(recommended, true)

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Post, items[j].Post
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	return items
}

func normalizePage(page PageRequest) (PageRequest, error) {
	if page.Page < 0 || page.Size < 0 {
		return page, invalidInput("page and size must not be negative")
	}
	if page.Size == 0 {
		page.Size = DefaultPageSize
	}
	if page.Size > MaxPageSize {
		page.Size = MaxPageSize
	}
	return page, nil
}
