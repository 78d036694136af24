package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/social-content/pkg/socialcontent"
	redisrepo "github.com/tendant/social-content/pkg/socialcontent/repo/redis"
)

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func entriesFor(owner uuid.UUID, base time.Time, n int) ([]*socialcontent.FeedEntry, []uuid.UUID) {
	entries := make([]*socialcontent.FeedEntry, n)
	posts := make([]uuid.UUID, n)
	for i := range entries {
		posts[i] = uuid.New()
		entries[i] = &socialcontent.FeedEntry{
			OwnerID:       owner,
			PostID:        posts[i],
			PostCreatedAt: base.Add(time.Duration(i) * time.Second),
			CreatedAt:     base.Add(time.Hour),
		}
	}
	return entries, posts
}

func TestFeedRepositoryInsertAndList(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := redisrepo.NewFeedRepository(client)
	ctx := context.Background()
	owner := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, posts := entriesFor(owner, base, 3)

	inserted, err := repo.InsertFeedEntries(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	inserted, err = repo.InsertFeedEntries(ctx, entries)
	require.NoError(t, err)
	assert.Zero(t, inserted, "entries are unique per owner and post")

	page, total, err := repo.ListFeedEntries(ctx, owner, socialcontent.PageRequest{Page: 0, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, posts[2], page[0].PostID)
	assert.Equal(t, posts[1], page[1].PostID)
	assert.Equal(t, base.Add(2*time.Second), page[0].PostCreatedAt)
	assert.Equal(t, base.Add(time.Hour), page[0].CreatedAt)
	assert.Equal(t, owner, page[0].OwnerID)

	page, _, err = repo.ListFeedEntries(ctx, owner, socialcontent.PageRequest{Page: 1, Size: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, posts[0], page[0].PostID)

	page, total, err = repo.ListFeedEntries(ctx, uuid.New(), socialcontent.PageRequest{Size: 2})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestFeedRepositoryDeleteForPost(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := redisrepo.NewFeedRepository(client, redisrepo.WithKeyPrefix("test:"))
	ctx := context.Background()
	post := uuid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	owners := []uuid.UUID{uuid.New(), uuid.New()}
	var entries []*socialcontent.FeedEntry
	for _, owner := range owners {
		entries = append(entries, &socialcontent.FeedEntry{OwnerID: owner, PostID: post, PostCreatedAt: base, CreatedAt: base})
	}
	other, _ := entriesFor(owners[0], base, 1)
	entries = append(entries, other...)

	_, err := repo.InsertFeedEntries(ctx, entries)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteFeedEntriesForPost(ctx, post))

	_, total, err := repo.ListFeedEntries(ctx, owners[0], socialcontent.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	_, total, err = repo.ListFeedEntries(ctx, owners[1], socialcontent.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)

	exists, err := client.Exists(ctx, "test:post:"+post.String()+":owners").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestFeedRepositoryMaxEntries(t *testing.T) {
	_, client := newMiniRedisClient(t)
	repo := redisrepo.NewFeedRepository(client, redisrepo.WithMaxEntries(2))
	ctx := context.Background()
	owner := uuid.New()
	entries, posts := entriesFor(owner, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 4)

	_, err := repo.InsertFeedEntries(ctx, entries)
	require.NoError(t, err)

	page, total, err := repo.ListFeedEntries(ctx, owner, socialcontent.PageRequest{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 2)
	assert.Equal(t, posts[3], page[0].PostID)
	assert.Equal(t, posts[2], page[1].PostID)

	t.Run("trimmed entries leave no trace", func(t *testing.T) {
		createdKey := "socialcontent:feed:" + owner.String() + ":created"
		fields, err := client.HKeys(ctx, createdKey).Result()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{posts[2].String(), posts[3].String()}, fields)

		for i, post := range posts {
			owners, err := client.SMembers(ctx, "socialcontent:post:"+post.String()+":owners").Result()
			require.NoError(t, err)
			if i < 2 {
				assert.Empty(t, owners, "post %d was trimmed", i)
			} else {
				assert.Equal(t, []string{owner.String()}, owners)
			}
		}
	})

	t.Run("reinserting trimmed entries inserts nothing", func(t *testing.T) {
		inserted, err := repo.InsertFeedEntries(ctx, entries)
		require.NoError(t, err)
		assert.Zero(t, inserted)

		page, total, err := repo.ListFeedEntries(ctx, owner, socialcontent.PageRequest{Size: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, posts[3], page[0].PostID)
	})
}

func TestFeedRepositoryReportsRedisErrors(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	repo := redisrepo.NewFeedRepository(client)
	mr.Close()

	_, err := repo.InsertFeedEntries(context.Background(), []*socialcontent.FeedEntry{{OwnerID: uuid.New(), PostID: uuid.New()}})
	assert.Error(t, err)
	_, _, err = repo.ListFeedEntries(context.Background(), uuid.New(), socialcontent.PageRequest{Size: 1})
	assert.Error(t, err)
}

func TestFeedFanoutOverRedis(t *testing.T) {
	_, client := newMiniRedisClient(t)
	feed := redisrepo.NewFeedRepository(client)
	ctx := context.Background()

	graph := staticGraph{}
	author := uuid.New()
	followers := []uuid.UUID{uuid.New(), uuid.New()}
	graph[author] = followers
	posts := postStore{}

	fanout, err := socialcontent.NewFeedFanout(socialcontent.FeedFanoutConfig{Graph: graph, Feed: feed, Posts: posts})
	require.NoError(t, err)

	post := &socialcontent.Post{ID: uuid.New(), AuthorID: author, State: socialcontent.EditorialStateValidated, CreatedAt: time.Unix(100, 0).UTC()}
	posts[post.ID] = post
	result, err := fanout.Propagate(ctx, post)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)

	page, err := fanout.Read(ctx, &followers[1], socialcontent.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, post.ID, page.Items[0].Post.ID)
}

type staticGraph map[uuid.UUID][]uuid.UUID

func (g staticGraph) ListFollowers(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	return g[accountID], nil
}

func (g staticGraph) FindEdge(ctx context.Context, followingID, followerID uuid.UUID) (*socialcontent.MembershipEdge, error) {
	return nil, socialcontent.ErrEdgeNotFound
}

func (g staticGraph) CreateEdge(ctx context.Context, edge *socialcontent.MembershipEdge) error {
	g[edge.FollowingID] = append(g[edge.FollowingID], edge.FollowerID)
	return nil
}

func (g staticGraph) DeleteEdge(ctx context.Context, followingID, followerID uuid.UUID) error {
	return nil
}

type postStore map[uuid.UUID]*socialcontent.Post

func (s postStore) CreatePost(ctx context.Context, post *socialcontent.Post) error {
	s[post.ID] = post
	return nil
}

func (s postStore) GetPost(ctx context.Context, id uuid.UUID) (*socialcontent.Post, error) {
	if p, ok := s[id]; ok {
		return p, nil
	}
	return nil, socialcontent.ErrPostNotFound
}

func (s postStore) UpdatePost(ctx context.Context, post *socialcontent.Post) error {
	s[post.ID] = post
	return nil
}

func (s postStore) FindPostsByIDs(ctx context.Context, ids []uuid.UUID) ([]*socialcontent.Post, error) {
	var out []*socialcontent.Post
	for _, id := range ids {
		if p, ok := s[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s postStore) ListRecentPosts(ctx context.Context, excludeAuthor *uuid.UUID, page socialcontent.PageRequest) ([]*socialcontent.Post, int64, error) {
	return nil, 0, nil
}
