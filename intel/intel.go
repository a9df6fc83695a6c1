// Package intel wraps the third-party lookup services proxied by sentrygate:
// an IP-reputation API and a large-language-model code reviewer. Upstream
// failure classes the handlers care about are exposed as sentinel errors.
package intel

import "errors"

var (
	// ErrInvalidKey means the upstream rejected our API key.
	ErrInvalidKey = errors.New("intel: invalid api key")
	// ErrQuota means the upstream's own quota or rate limit was hit.
	ErrQuota = errors.New("intel: upstream quota exceeded")
	// ErrNotFound means the upstream has no data for the target.
	ErrNotFound = errors.New("intel: target not found")
	// ErrUnconfigured means no API key was provided for this service.
	ErrUnconfigured = errors.New("intel: service not configured")
)
