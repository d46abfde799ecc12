package httpclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter reads the standard Retry-After header (seconds or HTTP date).
func ParseRetryAfter(headers http.Header) RateLimitInfo {
	var info RateLimitInfo
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return info
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		info.RetryAfter = time.Duration(seconds) * time.Second
		return info
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			info.RetryAfter = d
		}
	}
	return info
}

// ParseOpenAIHeaders extends ParseRetryAfter with OpenAI's x-ratelimit headers.
// Reset headers are durations such as "6m0s" or "120ms".
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := ParseRetryAfter(headers)

	if info.RetryAfter == 0 {
		for _, h := range []string{"x-ratelimit-reset-requests", "x-ratelimit-reset-tokens"} {
			if d, err := time.ParseDuration(headers.Get(h)); err == nil && d > 0 {
				info.RetryAfter = d
				break
			}
		}
	}
	if n, err := strconv.Atoi(headers.Get("x-ratelimit-remaining-requests")); err == nil {
		info.RequestsRemaining = n
	}
	if n, err := strconv.Atoi(headers.Get("x-ratelimit-remaining-tokens")); err == nil {
		info.TokensRemaining = n
	}
	return info
}
