// Package acumatica implements the remote side of the engine: a thin REST
// client for the Acumatica contract-based API, a session manager enforcing
// the remote login ceiling, and a windowed reader that normalizes remote
// documents into canonical records.
package acumatica

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/finvista/acusync/internal/common"
	"github.com/finvista/acusync/internal/logging"
)

// Credentials identify one Acumatica API user.
type Credentials struct {
	Name     string
	Password string
	Company  string
	Branch   string
}

// RemoteFile describes one file linked to a remote document through its note.
type RemoteFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Href     string `json:"href"`
}

// ListQuery holds the OData-style options of a list request.
type ListQuery struct {
	Filter string
	Select string
	Expand string
	Skip   int
	Top    int
}

// Client is a low-level HTTP client for one Acumatica instance. All requests
// carry a caller-supplied session cookie; the client itself holds no session
// state.
type Client struct {
	baseURL string
	version string
	http    *http.Client
	logger  logging.Logger
}

// NewClient builds a client for the instance at baseURL using the given
// contract endpoint version (for example "20.200.001"). The timeout bounds
// every request.
func NewClient(baseURL, version string, timeout time.Duration, logger logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *Client) entityURL(entity string, keys ...string) string {
	u := c.baseURL + "/entity/Default/" + c.version + "/" + entity
	for _, k := range keys {
		u += "/" + url.PathEscape(k)
	}
	return u
}

// Login authenticates against the remote instance and returns the session
// cookie header value. A remote "too many concurrent logins" response is
// surfaced as common.ErrLoginLimitReached so callers stop retrying.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(map[string]string{
		"name":     creds.Name,
		"password": creds.Password,
		"company":  creds.Company,
		"branch":   creds.Branch,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entity/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: login: %v", common.ErrTransientRemote, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		cookie := cookieHeader(resp.Cookies())
		if cookie == "" {
			return "", fmt.Errorf("%w: login succeeded but no session cookie returned", common.ErrTransientRemote)
		}
		return cookie, nil
	case resp.StatusCode == http.StatusTooManyRequests || isLoginLimitBody(respBody):
		return "", fmt.Errorf("%w: %s", common.ErrLoginLimitReached, strings.TrimSpace(string(respBody)))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", common.ErrAuthenticationFailed, strings.TrimSpace(string(respBody)))
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: login status %d", common.ErrTransientRemote, resp.StatusCode)
	default:
		return "", fmt.Errorf("login failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}

// Logout ends the remote session. Callers treat failures as best-effort.
func (c *Client) Logout(ctx context.Context, cookie string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entity/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cookie", cookie)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// List fetches one page of entity records matching the query.
func (c *Client) List(ctx context.Context, cookie, entity string, q ListQuery) ([]json.RawMessage, error) {
	params := url.Values{}
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if q.Select != "" {
		params.Set("$select", q.Select)
	}
	if q.Expand != "" {
		params.Set("$expand", q.Expand)
	}
	if q.Skip > 0 {
		params.Set("$skip", strconv.Itoa(q.Skip))
	}
	if q.Top > 0 {
		params.Set("$top", strconv.Itoa(q.Top))
	}

	body, err := c.get(ctx, cookie, c.entityURL(entity)+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decoding %s list: %w", entity, err)
	}
	return records, nil
}

// GetByKeys fetches a single entity record by its key fields (document type
// and reference number). Returns common.ErrRecordNotFound when the remote no
// longer has the identity.
func (c *Client) GetByKeys(ctx context.Context, cookie, entity string, keys []string, expand string) (json.RawMessage, error) {
	u := c.entityURL(entity, keys...)
	if expand != "" {
		u += "?$expand=" + url.QueryEscape(expand)
	}
	return c.get(ctx, cookie, u)
}

// GetFiles returns the files linked to an entity record through its note.
// The association is exposed by expanding the record's files linkage, not by
// a flat field on the record.
func (c *Client) GetFiles(ctx context.Context, cookie, entity string, keys []string) ([]RemoteFile, error) {
	body, err := c.GetByKeys(ctx, cookie, entity, keys, "files")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Files []RemoteFile `json:"files"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding files for %s: %w", strings.Join(keys, "/"), err)
	}
	return envelope.Files, nil
}

// Download fetches the bytes of one attached file by its href.
func (c *Client) Download(ctx context.Context, cookie, href string) ([]byte, error) {
	u := href
	if strings.HasPrefix(href, "/") {
		u = c.baseURL + href
	}
	return c.get(ctx, cookie, u)
}

func (c *Client) get(ctx context.Context, cookie, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Request-level timeouts and connection resets are retryable.
		return nil, fmt.Errorf("%w: %v", common.ErrTransientRemote, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", common.ErrTransientRemote, err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus maps an HTTP response to the engine error taxonomy.
func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", common.ErrUnauthorized, code)
	case code == http.StatusNotFound || isNoEntityBody(body):
		return fmt.Errorf("%w: status %d", common.ErrRecordNotFound, code)
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout || code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: status %d: %s", common.ErrTransientRemote, code, trimBody(body))
	case code >= 500:
		return fmt.Errorf("%w: status %d: %s", common.ErrTransientRemote, code, trimBody(body))
	default:
		return fmt.Errorf("remote request failed with status %d: %s", code, trimBody(body))
	}
}

// isNoEntityBody matches the Acumatica 500 response for a missing record,
// which the gateway reports as a server error rather than a 404.
func isNoEntityBody(body []byte) bool {
	return bytes.Contains(body, []byte("No entity satisfies the condition"))
}

func isLoginLimitBody(body []byte) bool {
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("concurrent logins")) ||
		bytes.Contains(lower, []byte("login limit"))
}

func trimBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
