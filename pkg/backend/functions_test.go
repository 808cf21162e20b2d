package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
)

func functionsServer(t *testing.T, status int, body string) (*httptest.Server, *int) {
	t.Helper()
	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.Method != http.MethodPost || r.URL.Path != "/functions/v1/delete-account" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer jwt" {
			t.Errorf("Authorization = %q, want Bearer jwt", got)
		}
		if got := r.Header.Get("apikey"); got != "anon" {
			t.Errorf("apikey = %q, want anon", got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestDeleteAccount(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode kerrors.Code
		wantMsg  string
	}{
		{name: "deleted", status: http.StatusOK, body: `{"ok":true}`},
		{name: "no content", status: http.StatusNoContent},
		{name: "already gone", status: http.StatusNotFound, body: `{"error":"user not found"}`},
		{name: "expired session", status: http.StatusUnauthorized, wantCode: kerrors.ErrCodeUnauthorized},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error":"storage cleanup failed"}`,
			wantCode: kerrors.ErrCodeRemoteCall,
			wantMsg:  "could not delete account: storage cleanup failed",
		},
		{
			name:     "html error page",
			status:   http.StatusBadGateway,
			body:     "<html>bad gateway</html>",
			wantCode: kerrors.ErrCodeRemoteCall,
			wantMsg:  "could not delete account: 502 Bad Gateway",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := functionsServer(t, tt.status, tt.body)
			fn, err := NewFunctions(srv.URL+"/functions/v1/", "jwt", WithAPIKey("anon"))
			if err != nil {
				t.Fatalf("NewFunctions: %v", err)
			}
			err = fn.DeleteAccount(context.Background())
			if *calls != 1 {
				t.Errorf("calls = %d, want exactly 1", *calls)
			}
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("DeleteAccount() = %v, want nil", err)
				}
				return
			}
			if !kerrors.Is(err, tt.wantCode) {
				t.Fatalf("DeleteAccount() = %v, want %s", err, tt.wantCode)
			}
			if tt.wantMsg != "" && kerrors.UserMessage(err) != tt.wantMsg {
				t.Errorf("UserMessage = %q, want %q", kerrors.UserMessage(err), tt.wantMsg)
			}
		})
	}
}

func TestDeleteAccount_RateLimited(t *testing.T) {
	srv, _ := functionsServer(t, http.StatusTooManyRequests, "")
	fn, _ := NewFunctions(srv.URL+"/functions/v1", "jwt", WithAPIKey("anon"))
	err := fn.DeleteAccount(context.Background())
	if kerrors.HTTPStatus(err) != http.StatusTooManyRequests {
		t.Errorf("DeleteAccount() = %v, want a rate limit error", err)
	}
}

func TestDeleteAccount_NoToken(t *testing.T) {
	fn, _ := NewFunctions("https://example.invalid/functions/v1", " ")
	if err := fn.DeleteAccount(context.Background()); !kerrors.Is(err, kerrors.ErrCodeUnauthorized) {
		t.Errorf("DeleteAccount() = %v, want %s", err, kerrors.ErrCodeUnauthorized)
	}
}

func TestDeleteAccount_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	fn, _ := NewFunctions(url, "jwt")
	if err := fn.DeleteAccount(context.Background()); !kerrors.Is(err, kerrors.ErrCodeNetwork) {
		t.Errorf("DeleteAccount() = %v, want %s", err, kerrors.ErrCodeNetwork)
	}
}

func TestNewFunctions_InvalidURL(t *testing.T) {
	if _, err := NewFunctions("ftp://example.com", "jwt"); err == nil {
		t.Error("NewFunctions should reject non-http URLs")
	}
}
