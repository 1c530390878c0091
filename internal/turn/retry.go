package turn

import (
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

// retryDelayPatterns cover the string forms spec.md §4.3 step 5 names,
// tried in order; the first match wins.
var retryDelayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry in ([\d.]+)\s*s`),
	regexp.MustCompile(`(?i)"retryDelay"\s*:\s*"([\d.]+)s"`),
	regexp.MustCompile(`(?i)Retry-After:\s*(\d+)`),
}

// extractRetryDelay looks for a provider-suggested retry delay embedded in
// an error's message, structured or stringly-typed. It returns false if
// none of the known forms are present.
func extractRetryDelay(errMsg string) (time.Duration, bool) {
	for _, re := range retryDelayPatterns {
		m := re.FindStringSubmatch(errMsg)
		if m == nil {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

// exponentialBackoff implements §4.3 step 5: base 12s, cap 180s, doubling
// per attempt (1-indexed).
func exponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		d = cap
	}
	return d
}

// jitter returns a random duration in [0, 1500ms), per §4.3 step 5.
func jitter() time.Duration {
	return time.Duration(rand.Intn(1500)) * time.Millisecond
}

// retryDelay computes the sleep duration between retries: the larger of
// the provider-extracted hint and the exponential backoff, plus jitter.
func retryDelay(attempt int, base, cap time.Duration, errMsg string) time.Duration {
	backoff := exponentialBackoff(attempt, base, cap)
	extracted, ok := extractRetryDelay(errMsg)
	delay := backoff
	if ok && extracted > backoff {
		delay = extracted
	}
	return delay + jitter()
}
