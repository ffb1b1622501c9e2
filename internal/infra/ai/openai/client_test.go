package openai

import (
    "errors"
    "fmt"
    "net/http"
    "testing"

    "github.com/sashabaranov/go-openai"
    "github.com/stretchr/testify/assert"

    domain "github.com/bryanwahyu/codeaudit/internal/domain/ai"
)

func TestWrapCompletionErr(t *testing.T) {
    t.Run("should map rate limited responses to the quota sentinel", func(t *testing.T) {
        apiErr := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limit reached"}

        err := wrapCompletionErr(fmt.Errorf("request failed: %w", apiErr))

        assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
    })

    t.Run("should pass other upstream failures through", func(t *testing.T) {
        apiErr := &openai.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "server error"}

        err := wrapCompletionErr(apiErr)

        assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
        assert.ErrorIs(t, err, apiErr)
    })

    t.Run("should pass transport failures through", func(t *testing.T) {
        cause := errors.New("connection refused")

        err := wrapCompletionErr(cause)

        assert.NotErrorIs(t, err, domain.ErrQuotaExceeded)
        assert.ErrorIs(t, err, cause)
    })
}
