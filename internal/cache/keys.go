package cache

import (
	"fmt"
)

func OAuthStateKey(state string) string {
	return fmt.Sprintf("oauth:state:%s", state)
}

// WebhookRateLimitKey buckets webhook calls by caller address.
func WebhookRateLimitKey(remoteAddr string) string {
	return fmt.Sprintf("ratelimit:webhook:%s", remoteAddr)
}
