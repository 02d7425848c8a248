package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"forumcore/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad direction", services.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: post 1", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: not the author", services.ErrAuthorization), http.StatusForbidden},
		{fmt.Errorf("%w: vote exists", services.ErrConflict), http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRenderErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	renderError(c, log, errors.New("pq: connection refused"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "internal server error", out["message"])
}

func TestParamID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "0"}}
	_, ok := paramID(c, "id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	id, ok := paramID(c, "id")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)
}
