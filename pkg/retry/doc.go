// Package retry runs an operation again on classified transient failures
// with a bounded number of attempts and a pluggable backoff.
//
//	res := retry.Do(ctx, func(ctx context.Context) error {
//	    return fetch(ctx, url)
//	}, &retry.Config{MaxAttempts: 3, Backoff: retry.DefaultExponentialBackoff()})
//	if res.Err != nil {
//	    // res.Attempts tells how many tries were made
//	}
package retry
