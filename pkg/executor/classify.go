package executor

import (
	"errors"
	"strings"

	"github.com/sdamache/memorybench/pkg/provider"
)

// category is the retry classification of a case failure (§4.D "Retry
// policy").
type category string

const (
	categoryTransient category = "transient"
	categoryPermanent category = "permanent"
)

var transientStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}
var permanentStatuses = map[int]bool{400: true, 401: true, 403: true, 404: true, 422: true}

var transientMessages = []string{
	"timeout", "econnreset", "econnrefused", "network",
	"socket hang up", "etimedout", "enotfound",
}

// classify determines whether err should be retried. When err carries a
// *provider.StatusError, status-based rules take precedence: the explicit
// transient/permanent sets, then "other 5xx is transient, other non-5xx
// with a status is permanent". Without a status, the error message is
// matched case-insensitively against a fixed transient vocabulary; anything
// else is permanent (fail fast).
func classify(err error) category {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		status := statusErr.Status
		switch {
		case transientStatuses[status]:
			return categoryTransient
		case permanentStatuses[status]:
			return categoryPermanent
		case status >= 500:
			return categoryTransient
		default:
			return categoryPermanent
		}
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range transientMessages {
		if strings.Contains(msg, needle) {
			return categoryTransient
		}
	}
	return categoryPermanent
}
