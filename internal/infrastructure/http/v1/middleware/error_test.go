package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erpcounter/internal/core/apperror"
)

func errorRouter(err error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Trace(), ErrorHandler())
	router.GET("/x", func(c *gin.Context) { _ = c.Error(err) })
	return router
}

type errorBody struct {
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

func serveError(t *testing.T, err error) (int, errorBody) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	errorRouter(err).ServeHTTP(rec, req)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestErrorHandler_ServerErrorsCarryRequestID(t *testing.T) {
	status, body := serveError(t, apperror.NewDatabase(errors.New("conn reset")))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, apperror.CodeDatabase, body.Code)
	assert.Equal(t, "req-42", body.Details["request_id"])

	status, body = serveError(t, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-42", body.Details["request_id"])
}

func TestErrorHandler_ClientErrorsKeepDetails(t *testing.T) {
	status, body := serveError(t, apperror.NewNotFound("counter definition", "NOPE"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperror.CodeNotFound, body.Code)
	assert.NotContains(t, body.Details, "request_id")
}
