// Package ratelimit provides the limiters used to pace outgoing media
// downloads and actor runs (TokenBucket) and incoming analysis requests
// (SlidingWindow).
package ratelimit
