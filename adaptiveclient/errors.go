package adaptiveclient

import "errors"

// ErrRetryAfterActive is returned by Client.RoundTrip under StrategyReject
// when a previously observed Retry-After window is still in effect.
var ErrRetryAfterActive = errors.New("adaptiveclient: retry-after window still active")

// errTooManyRequests is an internal signal driving the backoff.Retry loop;
// it is never returned to RoundTrip's caller, which instead sees the last
// 429 response once retries are exhausted.
var errTooManyRequests = errors.New("adaptiveclient: received 429")
