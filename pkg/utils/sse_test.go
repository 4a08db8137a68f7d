package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)

	require.NoError(t, SendSSEChunk(rec, rec, map[string]string{"content": "a"}))
	require.NoError(t, SendSSEEvent(rec, rec, "delta", map[string]int{"version": 2}))
	require.NoError(t, SendSSEComment(rec, rec, "ping"))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		"data: {\"content\":\"a\"}\n\n"+
			"event: delta\ndata: {\"version\":2}\n\n"+
			": ping\n\n",
		rec.Body.String())
}

func TestSSERejectsUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.Error(t, SendSSEChunk(rec, rec, make(chan int)))
	assert.Empty(t, rec.Body.String())
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusConflict, "busy")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"busy"}`, rec.Body.String())
}
