package config

import "time"

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// PollInterval is how long an idle worker waits before polling again.
func (w Workflow) PollInterval() time.Duration { return seconds(w.QueuePollInterval) }

// ErrorBackoff is the pause after a queue read error.
func (w Workflow) ErrorBackoff() time.Duration { return seconds(w.ErrorRetryInterval) }

// Heartbeat is the interval between heartbeat writes for a running job.
func (w Workflow) Heartbeat() time.Duration { return seconds(w.HeartbeatInterval) }

// StaleAfter is the heartbeat age after which a job is reclaimed.
func (w Workflow) StaleAfter() time.Duration { return seconds(w.HeartbeatTimeout) }

// RetryDelay returns the redelivery delay before the given attempt number
// (1-based count of attempts already made): the base backoff doubled per
// prior attempt and capped at the maximum.
func (w Workflow) RetryDelay(attempt int) time.Duration {
	base := seconds(w.RetryBackoffSeconds)
	limit := seconds(w.RetryBackoffMaxSeconds)
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if limit > 0 && delay >= limit/2 {
			delay = limit
			break
		}
		delay *= 2
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

// Throttle is the pause between translation segment calls.
func (t Translation) Throttle() time.Duration {
	return time.Duration(t.ThrottleMS) * time.Millisecond
}

// Timeout returns the notification request timeout.
func (n Notifications) Timeout() time.Duration { return seconds(n.RequestTimeout) }

// TokenTTL is the lifetime of issued API tokens.
func (a API) TokenTTL() time.Duration { return time.Duration(a.TokenTTLHours) * time.Hour }
