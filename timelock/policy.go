package timelock

const (
	// MinDelay is the minimum delay, in seconds, between queueing a transaction and its timestamp.
	MinDelay uint64 = 10
	// MaxDelay is the maximum delay, in seconds, between queueing a transaction and its timestamp.
	MaxDelay uint64 = 1000
	// GracePeriod is the time, in seconds, after the timestamp during which a transaction can still be executed.
	GracePeriod uint64 = 1000
)

// checkQueueWindow validates the timestamp of a transaction being queued at time now.
// Both bounds are inclusive.
func checkQueueWindow(now, timestamp uint64) error {
	// Written as differences so timestamps near the uint64 limit can't overflow
	if timestamp < now || timestamp-now < MinDelay || timestamp-now > MaxDelay {
		return &TimestampNotInRangeError{
			BlockTimestamp: now,
			Timestamp:      timestamp,
		}
	}
	return nil
}

// checkExecuteWindow validates that a transaction with the given timestamp can be executed at time now.
// Execution is allowed from the timestamp up to and including timestamp+GracePeriod.
func checkExecuteWindow(now, timestamp uint64) error {
	if now < timestamp {
		return &TimestampNotPassedError{
			BlockTimestamp: now,
			Timestamp:      timestamp,
		}
	}
	if now-timestamp > GracePeriod {
		// Cannot overflow: now > timestamp+GracePeriod
		return &TimestampExpiredError{
			BlockTimestamp: now,
			ExpiresAt:      timestamp + GracePeriod,
		}
	}
	return nil
}
