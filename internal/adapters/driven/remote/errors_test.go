package remote

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

func TestStatusError(t *testing.T) {
	tests := []struct {
		status      int
		unavailable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		rec.WriteHeader(tt.status)
		_, _ = rec.WriteString("details")

		err := StatusError("ollama", rec.Result())

		assert.Equal(t, tt.unavailable, errors.Is(err, domain.ErrProducerUnavailable), "status %d", tt.status)
		assert.True(t, strings.HasPrefix(err.Error(), "ollama: "))
		assert.Contains(t, err.Error(), "details")
	}
}

func TestTransportError(t *testing.T) {
	err := TransportError("openai", assert.AnError)

	assert.ErrorIs(t, err, domain.ErrProducerUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}
