package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/yeisme/minerva/pkg/apperr"
)

// TestHTTPStatus 测试错误类别到状态码的映射.
func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{apperr.Validation("bad channel %q", "x"), http.StatusBadRequest},
		{apperr.Unprocessable("min > max"), http.StatusUnprocessableEntity},
		{apperr.NotFound("image %s", "abc"), http.StatusNotFound},
		{apperr.Forbidden("no grant"), http.StatusForbidden},
		{apperr.Upstream(errors.New("timeout"), "get tile"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("resolve: %w", apperr.NotFound("settings")), http.StatusNotFound},
	}

	for _, c := range cases {
		if got := apperr.HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

// TestIsKind 测试 errors.Is 按类别匹配哨兵错误.
func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", apperr.Forbidden("denied"))
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Error("expected errors.Is to match ErrForbidden")
	}

	if errors.Is(err, apperr.ErrNotFound) {
		t.Error("forbidden should not match ErrNotFound")
	}
}

// TestUpstreamRetryable 测试仅 Upstream 可重试且保留原始错误.
func TestUpstreamRetryable(t *testing.T) {
	base := errors.New("connection reset")
	err := apperr.Upstream(base, "fetch raw tile")

	if !apperr.IsRetryable(err) {
		t.Error("upstream error should be retryable")
	}

	if !errors.Is(err, base) {
		t.Error("upstream error should unwrap to base")
	}

	if apperr.IsRetryable(apperr.NotFound("x")) {
		t.Error("not found should not be retryable")
	}
}
