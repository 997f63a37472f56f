// Package memo memoizes producer functions on top of a [cache.Cache].
//
// [Wrap] implements cache-aside for context-aware producers: a hit returns
// the stored value, a miss runs the producer and stores a successful
// result. Misses that race on the same key are coalesced through a
// single-flight table, so a cold key costs one producer call no matter how
// many callers arrive at once. Failures, including cancellation and
// panics, reach every waiting caller and are never cached.
//
//	d := memo.New(c, memo.WithDefaults(memo.TTL(time.Minute)))
//	stats, err := memo.Wrap(ctx, d, memo.Key("feedback_stats_", filter),
//	    func(ctx context.Context) (*FeedbackStats, error) {
//	        return repo.FeedbackStats(ctx, filter)
//	    },
//	    memo.Tags("feedback"),
//	)
//
// [WrapSync] is the same contract for plain functions, without coalescing.
//
// A nil result (nil pointer, map, slice or interface) is returned but not
// stored unless [AllowNull] is set; zero numbers and empty strings are
// always stored. Call options are applied over the decorator defaults, and
// [Enabled](false) on either level bypasses the cache entirely.
package memo
