package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matzehuels/kinship/pkg/buildinfo"
	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/observability"
)

const httpTimeout = 15 * time.Second

// DeleteAccountFunction is the name of the account deletion endpoint.
const DeleteAccountFunction = "delete-account"

// Functions calls HTTP functions deployed next to the database, e.g.
// https://<project>.supabase.co/functions/v1/<name>.
type Functions struct {
	base   *url.URL
	apiKey string
	token  string
	http   *http.Client
}

// FunctionsOption configures Functions.
type FunctionsOption func(*Functions)

// WithHTTPClient replaces the default client with a 15 second timeout.
func WithHTTPClient(c *http.Client) FunctionsOption {
	return func(f *Functions) {
		if c != nil {
			f.http = c
		}
	}
}

// WithAPIKey sets the apikey header sent with every call.
func WithAPIKey(key string) FunctionsOption {
	return func(f *Functions) { f.apiKey = key }
}

// NewFunctions creates a client for the functions under baseURL, calling
// them as the user identified by accessToken.
func NewFunctions(baseURL, accessToken string, opts ...FunctionsOption) (*Functions, error) {
	if err := kerrors.ValidateURL(baseURL); err != nil {
		return nil, err
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "invalid functions URL")
	}
	f := &Functions{base: u, token: accessToken, http: &http.Client{Timeout: httpTimeout}}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// DeleteAccount deletes the calling user's account. An account that is
// already gone (404) counts as deleted.
func (f *Functions) DeleteAccount(ctx context.Context) error {
	if strings.TrimSpace(f.token) == "" {
		return kerrors.New(kerrors.ErrCodeUnauthorized, "sign in before deleting your account")
	}
	status, body, err := f.call(ctx, DeleteAccountFunction, nil)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300, status == http.StatusNotFound:
		return nil
	case status == http.StatusUnauthorized:
		return kerrors.New(kerrors.ErrCodeUnauthorized, "your session has expired, sign in again")
	case status == http.StatusTooManyRequests:
		return &kerrors.RateLimitedError{Message: failureMessage(body, status)}
	default:
		return kerrors.New(kerrors.ErrCodeRemoteCall, "could not delete account: %s", failureMessage(body, status))
	}
}

// call POSTs payload as JSON to the named function and returns the status
// and at most 64 KiB of the response body.
func (f *Functions) call(ctx context.Context, name string, payload any) (int, []byte, error) {
	endpoint := f.base.JoinPath(name)
	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s payload: %w", name, err)
		}
		body = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return 0, nil, kerrors.Wrap(kerrors.ErrCodeInvalidInput, err, "invalid request for %s", name)
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	if f.apiKey != "" {
		req.Header.Set("apikey", f.apiKey)
	}

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, endpoint.Host, endpoint.Path)
	start := time.Now()

	resp, err := f.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, endpoint.Host, endpoint.Path, err)
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, kerrors.Wrap(kerrors.ErrCodeTimeout, err, "%s timed out", name)
		}
		return 0, nil, kerrors.Wrap(kerrors.ErrCodeNetwork, err, "could not reach %s", endpoint.Host)
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, endpoint.Host, endpoint.Path, resp.StatusCode, time.Since(start))

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, data, nil
}

// failureMessage extracts {"error": "..."} or {"message": "..."} from a
// response body, falling back to the status text.
func failureMessage(body []byte, status int) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return strconv.Itoa(status) + " " + http.StatusText(status)
}
