package main

import (
	"errors"
	"time"
)

var errTimeLimitExceeded = errors.New("execution time limit exceeded")

// timeLimitExceeded reports whether deadline has passed. Zero deadline means no limit.
func timeLimitExceeded(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func deadlineAfter(limit time.Duration) time.Time {
	if limit <= 0 {
		return time.Time{}
	}
	return time.Now().Add(limit)
}
