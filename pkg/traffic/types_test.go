package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderCaseInsensitive(t *testing.T) {
	h := make(Header)
	h.Set("Content-Type", "application/json")
	assert.Equal(t, "application/json", h.Get("content-type"))
	assert.Equal(t, "application/json", h.Get("CONTENT-TYPE"))
	h.Del("CONTENT-type")
	assert.Empty(t, h.Get("content-type"))

	var nilHeader Header
	assert.Empty(t, nilHeader.Get("x"))
}

func TestParseCapturedRequestNormalizesHeaders(t *testing.T) {
	raw := `{"type":"fetch","method":"POST","url":"https://api.example.com/users",
		"headers":{"X-Token":"abc","Accept":"*/*","X-Count":3},
		"body":"{\"a\":1}","timestamp":"2024-05-01T10:00:00.000Z"}`

	req, err := ParseCapturedRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "fetch", req.Type)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "abc", req.Headers.Get("x-token"))
	assert.Equal(t, "3", req.Headers.Get("X-Count"))
	_, upper := req.Headers["X-Token"]
	assert.False(t, upper)
	require.NotNil(t, req.Body)
	assert.Equal(t, `{"a":1}`, *req.Body)
	assert.Equal(t, 2024, req.Timestamp.Year())
}

func TestParseCapturedRequestNullBodyAndHeaders(t *testing.T) {
	req, err := ParseCapturedRequest(`{"method":"GET","url":"https://example.com/","headers":null,"body":null}`)
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	assert.NotNil(t, req.Headers)
}

func TestParseCapturedRequestRejectsGarbage(t *testing.T) {
	_, err := ParseCapturedRequest("not json")
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	req := NewCapturedRequest("get", "https://example.com/a?b=1")
	req.Headers.Set("Accept", "text/html")
	raw, err := req.Encode()
	require.NoError(t, err)

	back, err := ParseCapturedRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, "GET", back.Method)
	assert.Equal(t, req.URL, back.URL)
	assert.Equal(t, "text/html", back.Headers.Get("accept"))
	assert.True(t, req.Timestamp.Equal(back.Timestamp))
}
