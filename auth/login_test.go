package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tjcrane/roomwarden/config"
)

func newTestClient(handler http.HandlerFunc, pass string) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	cfg := &config.Config{
		Nick:      "Warden",
		Pass:      pass,
		ActionUrl: srv.URL + "/action.php",
	}
	return NewClient(cfg), srv
}

func TestGuestAssertion(t *testing.T) {
	assertion := strings.Repeat("x", 80)
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "getassertion", q.Get("act"))
		assert.Equal(t, "warden", q.Get("userid"))
		assert.Equal(t, "4", q.Get("challengekeyid"))
		assert.Equal(t, "abc", q.Get("challenge"))
		w.Write([]byte(assertion))
	}, "")
	defer srv.Close()

	got, retry, err := c.Login("4", "abc")
	require.NoError(t, err)
	assert.False(t, retry)
	assert.Equal(t, assertion, got)
}

func TestPasswordLogin(t *testing.T) {
	assertion := strings.Repeat("y", 80)
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "login", r.PostForm.Get("act"))
		assert.Equal(t, "Warden", r.PostForm.Get("name"))
		assert.Equal(t, "hunter2", r.PostForm.Get("pass"))
		w.Write([]byte(`]{"actionsuccess":true,"assertion":"` + assertion + `","curuser":{"loggedin":true}}`))
	}, "hunter2")
	defer srv.Close()

	got, retry, err := c.Login("4", "abc")
	require.NoError(t, err)
	assert.False(t, retry)
	assert.Equal(t, assertion, got)
}

func TestLoginRejected(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(";"))
	}, "wrongpass")
	defer srv.Close()

	_, retry, err := c.Login("4", "abc")
	require.Error(t, err)
	assert.False(t, retry, "a credential rejection is not retried")
}

func TestLoginHeavyLoadIsRetried(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat(" ", 60) + "the login server is under heavy load"))
	}, "hunter2")
	defer srv.Close()

	_, retry, err := c.Login("4", "abc")
	require.Error(t, err)
	assert.True(t, retry)
}

func TestLoginGatewayErrorIsRetried(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<!DOCTYPE html>\n<html><body>502 Bad Gateway</body></html>"))
	}, "hunter2")
	defer srv.Close()

	_, retry, err := c.Login("4", "abc")
	require.Error(t, err)
	assert.True(t, retry)
}

func TestLoginShortBodyIsFatal(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nope"))
	}, "hunter2")
	defer srv.Close()

	_, retry, err := c.Login("4", "abc")
	require.Error(t, err)
	assert.False(t, retry)
}

func TestLoginActionFailure(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`]{"actionsuccess":false,"assertion":"","curuser":{"loggedin":false},"padpadpadpadpadpad":1}`))
	}, "hunter2")
	defer srv.Close()

	_, retry, err := c.Login("4", "abc")
	require.Error(t, err)
	assert.False(t, retry)
}

func TestLoginUnreachableServerIsRetried(t *testing.T) {
	cfg := &config.Config{Nick: "Warden", ActionUrl: "http://127.0.0.1:1/action.php"}
	c := NewClient(cfg)
	_, retry, err := c.Login("4", "abc")
	require.Error(t, err)
	assert.True(t, retry)
}
