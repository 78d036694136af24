package socialcontent

import (
	"context"

	"github.com/google/uuid"
)

// NoopRecommendations recommends nothing.
type NoopRecommendations struct{}

func (NoopRecommendations) Recommend(ctx context.Context, viewer *uuid.UUID, page PageRequest) ([]*Post, int64, error) {
	return nil, 0, nil
}

// RecentPostsRecommendations recommends the most recent posts not written by
// the viewer. It stands in for a real recommendation engine.
type RecentPostsRecommendations struct {
	Posts PostRepository
}

func (r RecentPostsRecommendations) Recommend(ctx context.Context, viewer *uuid.UUID, page PageRequest) ([]*Post, int64, error) {
	return r.Posts.ListRecentPosts(ctx, viewer, page)
}
