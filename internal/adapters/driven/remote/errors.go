// Package remote classifies failed calls to model services so callers can
// tell an outage from a rejected request.
package remote

import (
	"fmt"
	"io"
	"net/http"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

// TransportError wraps a failed request as a producer outage.
func TransportError(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, domain.ErrProducerUnavailable, err)
}

// StatusError describes a non-200 response. Server errors and throttling are
// reported as producer outages; other statuses are plain errors.
func StatusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w: status %d: %s", provider, domain.ErrProducerUnavailable, resp.StatusCode, body)
	}
	return fmt.Errorf("%s: status %d: %s", provider, resp.StatusCode, body)
}
