package httputil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	}))
	defer srv.Close()

	c := NewStandardClient(nil)
	assert.Equal(t, http.DefaultClient, c.Client)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))
}

func TestMockHTTPClient(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	m := NewMockHTTPClient().
		AddResponse(http.StatusAccepted, `{"ok":true}`).
		AddErrorResponse(boom)

	req, _ := http.NewRequest(http.MethodPost, "http://oracle/evaluate", strings.NewReader(`{"a":1}`))
	resp, err := m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, `{"a":1}`, string(m.Body(0)))

	req, _ = http.NewRequest(http.MethodGet, "http://oracle/evaluate", nil)
	_, err = m.Do(req)
	assert.ErrorIs(t, err, boom)

	resp, err = m.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, m.RequestCount())
	assert.Nil(t, m.Body(5))
}
