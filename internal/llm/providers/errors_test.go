package providers

import (
	"net/http"
	"testing"
)

func TestIsRetryableServerErrors(t *testing.T) {
	for _, code := range []int{
		http.StatusTooManyRequests, http.StatusRequestTimeout,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
	} {
		pe := classifyStatus("test", code, "", 0)
		if !pe.IsRetryable() {
			t.Errorf("status %d should be retryable", code)
		}
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	pe := classifyStatus("test", 0, "connection reset", 0)
	if !pe.IsRetryable() {
		t.Error("a status-less transport error should be retryable")
	}
}

func TestIsRetryableUnauthorizedIsFalse(t *testing.T) {
	pe := classifyStatus("test", http.StatusUnauthorized, "", 0)
	if pe.IsRetryable() {
		t.Error("401 should not be retryable under the generic backoff policy")
	}
	if !pe.ShouldFailover() || pe.Failover != FailoverRefreshCredential {
		t.Error("401 should still classify as FailoverRefreshCredential")
	}
}

func TestIsRetryableClientErrorsAreFalse(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound} {
		pe := classifyStatus("test", code, "", 0)
		if pe.IsRetryable() {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}
