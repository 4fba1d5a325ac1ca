package respond

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("claim c1: %w", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: claim_type", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{domain.ErrConflict, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), tt.err.Error())
	}
}

func TestError_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, errors.New("sql: database is locked"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
	assert.Len(t, c.Errors, 1)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Error(c, fmt.Errorf("%w: claim_type is required", domain.ErrInvalidInput))
	assert.JSONEq(t, `{"error":"invalid input: claim_type is required"}`, w.Body.String())
}

func TestError_NotFoundIsUniform(t *testing.T) {
	gin.SetMode(gin.TestMode)

	for _, err := range []error{
		domain.ErrNotFound,
		fmt.Errorf("claim 6f1c: %w", domain.ErrNotFound),
		fmt.Errorf("notification n-9: %w", domain.ErrNotFound),
	} {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, err)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"resource not found"}`, w.Body.String(), err.Error())
	}
}
