package auth

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/types"
)

// Client performs the challenge login exchange against the action endpoint.
// Without a configured password it requests a guest assertion via GET, with
// one it posts the login form.
type Client struct {
	cfg  *config.Config
	http *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Login exchanges the challenge for a login assertion. retry is true for
// recoverable server conditions (login server under heavy load, gateway
// error pages); the caller is expected to try the same challenge again
// later. Any other failure is an unrecoverable credential error.
func (c *Client) Login(challengeKeyId, challenge string) (assertion string, retry bool, err error) {
	var resp *http.Response
	if c.cfg.Pass == "" {
		q := url.Values{}
		q.Set("act", "getassertion")
		q.Set("userid", types.ToId(c.cfg.Nick))
		q.Set("challengekeyid", challengeKeyId)
		q.Set("challenge", challenge)
		resp, err = c.http.Get(c.cfg.ActionUrl + "?" + q.Encode())
	} else {
		form := url.Values{}
		form.Set("act", "login")
		form.Set("name", c.cfg.Nick)
		form.Set("pass", c.cfg.Pass)
		form.Set("challengekeyid", challengeKeyId)
		form.Set("challenge", challenge)
		resp, err = c.http.PostForm(c.cfg.ActionUrl, form)
	}
	if err != nil {
		// network trouble is worth another attempt
		return "", true, err
	}
	defer resp.Body.Close()
	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", true, err
	}
	body := string(raw)

	if body == ";" {
		return "", false, fmt.Errorf("nick is registered - invalid or no password given")
	}
	if strings.Contains(body, "heavy load") {
		return "", true, fmt.Errorf("the login server is under heavy load")
	}
	if strings.HasPrefix(body, "<!DOCTYPE html>") {
		return "", true, fmt.Errorf("connection error from the login gateway")
	}
	if len(body) < 50 {
		return "", false, fmt.Errorf("failed to log in: %q", body)
	}

	// a password login answers with ']' followed by a JSON object carrying
	// the assertion; the guest path answers with the raw assertion
	if body[0] == ']' {
		var result struct {
			ActionSuccess bool   `json:"actionsuccess"`
			Assertion     string `json:"assertion"`
		}
		if err := json.Unmarshal(raw[1:], &result); err == nil {
			if !result.ActionSuccess {
				return "", false, fmt.Errorf("login action was not successful: %s", body)
			}
			return result.Assertion, false, nil
		}
	}
	return body, false, nil
}
