// Package redis stores materialized feeds in Redis sorted sets.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/tendant/social-content/pkg/socialcontent"
)

// FeedRepository implements socialcontent.FeedRepository on Redis.
//
// Each owner has a sorted set of post ids scored by the post's creation time
// in unix milliseconds, so equal scores fall back to member order, which
// matches the id tie break of the other repositories. A set per post records
// its owners for DeleteFeedEntriesForPost. Inserts run as a Lua script so a
// capped feed drops trimmed entries from every key at once.
type FeedRepository struct {
	client     goredis.Cmdable
	prefix     string
	maxEntries int64
}

var _ socialcontent.FeedRepository = (*FeedRepository)(nil)

// Option configures a FeedRepository.
type Option func(*FeedRepository)

// WithKeyPrefix namespaces every key written by the repository.
func WithKeyPrefix(prefix string) Option {
	return func(r *FeedRepository) {
		r.prefix = prefix
	}
}

// WithMaxEntries caps each feed, dropping the oldest entries on insert.
func WithMaxEntries(n int64) Option {
	return func(r *FeedRepository) {
		r.maxEntries = n
	}
}

// NewFeedRepository creates a FeedRepository using client.
func NewFeedRepository(client goredis.Cmdable, opts ...Option) *FeedRepository {
	r := &FeedRepository{client: client, prefix: "socialcontent:"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *FeedRepository) feedKey(owner uuid.UUID) string {
	return r.prefix + "feed:" + owner.String()
}

func (r *FeedRepository) createdKey(owner uuid.UUID) string {
	return r.prefix + "feed:" + owner.String() + ":created"
}

func (r *FeedRepository) ownersKey(post uuid.UUID) string {
	return r.prefix + "post:" + post.String() + ":owners"
}

func (r *FeedRepository) InsertFeedEntries(ctx context.Context, entries []*socialcontent.FeedEntry) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	adds := make([]*goredis.Cmd, len(entries))
	_, err := r.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, e := range entries {
			keys := []string{r.feedKey(e.OwnerID), r.createdKey(e.OwnerID), r.ownersKey(e.PostID)}
			adds[i] = pipe.Eval(ctx, insertEntryScript, keys,
				float64(e.PostCreatedAt.UnixMilli()),
				e.PostID.String(),
				e.CreatedAt.UnixNano(),
				e.OwnerID.String(),
				r.maxEntries,
				r.prefix+"post:",
				":owners",
			)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert feed entries: %w", err)
	}

	inserted := 0
	for _, cmd := range adds {
		n, err := cmd.Int()
		if err != nil {
			return inserted, fmt.Errorf("insert feed entries: %w", err)
		}
		inserted += n
	}
	return inserted, nil
}

// insertEntryScript adds one feed entry and trims the feed to its cap along
// with the entry times and post owner sets of the trimmed members. It
// returns 1 when the entry is new and survived the trim.
//
// KEYS: feed, entry times, owners of the post.
// ARGV: score, post id, entry time, owner id, cap (0 for none), owners key
// prefix and suffix.
const insertEntryScript = `
if redis.call('ZADD', KEYS[1], 'NX', ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('HSETNX', KEYS[2], ARGV[2], ARGV[3])
redis.call('SADD', KEYS[3], ARGV[4])
local cap = tonumber(ARGV[5])
if cap > 0 then
	local excess = redis.call('ZCARD', KEYS[1]) - cap
	if excess > 0 then
		local dropped = redis.call('ZRANGE', KEYS[1], 0, excess - 1)
		redis.call('ZREMRANGEBYRANK', KEYS[1], 0, excess - 1)
		for _, member in ipairs(dropped) do
			redis.call('HDEL', KEYS[2], member)
			redis.call('SREM', ARGV[6] .. member .. ARGV[7], ARGV[4])
		end
		if not redis.call('ZSCORE', KEYS[1], ARGV[2]) then
			return 0
		end
	end
end
return 1
`

func (r *FeedRepository) ListFeedEntries(ctx context.Context, ownerID uuid.UUID, page socialcontent.PageRequest) ([]*socialcontent.FeedEntry, int64, error) {
	if r.client == nil {
		return nil, 0, fmt.Errorf("redis client is nil")
	}
	key := r.feedKey(ownerID)

	total, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("count feed entries: %w", err)
	}
	start := int64(page.Offset())
	if page.Size <= 0 || start >= total {
		return nil, total, nil
	}
	members, err := r.client.ZRevRangeWithScores(ctx, key, start, start+int64(page.Size)-1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list feed entries: %w", err)
	}
	if len(members) == 0 {
		return nil, total, nil
	}

	fields := make([]string, len(members))
	for i, m := range members {
		fields[i], _ = m.Member.(string)
	}
	created, err := r.client.HMGet(ctx, r.createdKey(ownerID), fields...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load feed entry times: %w", err)
	}

	entries := make([]*socialcontent.FeedEntry, 0, len(members))
	for i, m := range members {
		postID, err := uuid.Parse(fields[i])
		if err != nil {
			return nil, 0, fmt.Errorf("feed %s holds invalid member %v: %w", ownerID, m.Member, err)
		}
		entry := &socialcontent.FeedEntry{
			OwnerID:       ownerID,
			PostID:        postID,
			PostCreatedAt: time.UnixMilli(int64(m.Score)).UTC(),
		}
		if s, ok := created[i].(string); ok {
			if nanos, err := strconv.ParseInt(s, 10, 64); err == nil {
				entry.CreatedAt = time.Unix(0, nanos).UTC()
			}
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (r *FeedRepository) DeleteFeedEntriesForPost(ctx context.Context, postID uuid.UUID) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ownersKey := r.ownersKey(postID)
	owners, err := r.client.SMembers(ctx, ownersKey).Result()
	if err != nil {
		return fmt.Errorf("list feed owners of %s: %w", postID, err)
	}

	member := postID.String()
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, raw := range owners {
			owner, err := uuid.Parse(raw)
			if err != nil {
				continue
			}
			pipe.ZRem(ctx, r.feedKey(owner), member)
			pipe.HDel(ctx, r.createdKey(owner), member)
		}
		pipe.Del(ctx, ownersKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete feed entries of %s: %w", postID, err)
	}
	return nil
}
