package sources

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	openIDNamespace      = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSel  = "http://specs.openid.net/auth/2.0/identifier_select"
	defaultVerifyTimeout = 5 * time.Second
)

var steamClaimedIDPattern = regexp.MustCompile(`^https?://steamcommunity\.com/openid/id/(\d{17})$`)

// OpenIDVerifier drives the Steam OpenID 2.0 login and assertion check.
type OpenIDVerifier struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	logger   *slog.Logger
}

func NewOpenIDVerifier(endpoint string, timeout time.Duration, hc *http.Client, logger *slog.Logger) *OpenIDVerifier {
	if endpoint == "" {
		endpoint = "https://steamcommunity.com/openid/login"
	}
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenIDVerifier{endpoint: endpoint, timeout: timeout, http: hc, logger: logger}
}

// AuthURL builds the provider redirect for a checkid_setup request.
func (v *OpenIDVerifier) AuthURL(returnTo, realm string) string {
	q := url.Values{}
	q.Set("openid.ns", openIDNamespace)
	q.Set("openid.mode", "checkid_setup")
	q.Set("openid.return_to", returnTo)
	q.Set("openid.realm", realm)
	q.Set("openid.identity", openIDIdentifierSel)
	q.Set("openid.claimed_id", openIDIdentifierSel)
	return v.endpoint + "?" + q.Encode()
}

// Verify re-submits the assertion to the provider in check_authentication mode.
// It returns the 64-bit Steam id on success; every failure is a plain negative result.
func (v *OpenIDVerifier) Verify(ctx context.Context, params map[string]string) (string, bool) {
	claimed := params["openid.claimed_id"]
	m := steamClaimedIDPattern.FindStringSubmatch(claimed)
	if m == nil {
		v.logger.Warn("steam openid assertion has malformed claimed_id", "claimed_id", claimed)
		return "", false
	}

	form := url.Values{}
	for k, val := range params {
		form.Set(k, val)
	}
	form.Set("openid.mode", "check_authentication")

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		v.logger.Warn("steam openid verify request build failed", "error", err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.http.Do(req)
	if err != nil {
		v.logger.Warn("steam openid verify request failed", "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("steam openid verify returned non-200", "status", resp.StatusCode)
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		v.logger.Warn("steam openid verify body read failed", "error", err)
		return "", false
	}
	if !isValidAssertion(string(body)) {
		return "", false
	}
	return m[1], true
}

// isValidAssertion parses the key-value form response of check_authentication.
func isValidAssertion(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		k, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && k == "is_valid" {
			return strings.TrimSpace(val) == "true"
		}
	}
	return false
}
