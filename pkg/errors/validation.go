package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// maxIDLength bounds graph, person and edge identifiers.
const maxIDLength = 128

// idRegex matches identifiers accepted from the command line and HTTP
// routes: UUIDs, numeric IDs and simple slugs.
var idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// ValidateID validates a graph, person or edge identifier.
//
// IDs are interpolated into change-feed filters ("graph_id=eq.<id>") and
// cache keys, so anything beyond letters, digits and "_.:-" is rejected.
func ValidateID(kind, id string) error {
	if id == "" {
		return New(ErrCodeInvalidID, "%s id cannot be empty", kind)
	}
	if len(id) > maxIDLength {
		return New(ErrCodeInvalidID, "%s id too long (max %d characters)", kind, maxIDLength)
	}
	if !idRegex.MatchString(id) {
		return New(ErrCodeInvalidID, "invalid %s id: %q", kind, id)
	}
	return nil
}

// NormalizeInviteToken trims an invite token and reports whether anything
// is left. An empty or whitespace-only token never has a preview.
func NormalizeInviteToken(token string) (string, bool) {
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ValidateInviteToken rejects tokens that cannot be accepted before any
// remote call is made.
func ValidateInviteToken(token string) error {
	t, ok := NormalizeInviteToken(token)
	if !ok {
		return New(ErrCodeInviteInvalid, "invite token is empty")
	}
	for _, r := range t {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInviteInvalid, "invite token contains invalid characters")
		}
	}
	return nil
}

// ValidateName validates a person's first or last name.
func ValidateName(name string) error {
	if len(name) > 200 {
		return New(ErrCodeInvalidInput, "name too long (max 200 characters)")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "name contains invalid control characters")
		}
	}
	return nil
}

// ValidateFormat checks an output format against the supported set.
func ValidateFormat(format string, supported ...string) error {
	for _, f := range supported {
		if strings.EqualFold(format, f) {
			return nil
		}
	}
	return New(ErrCodeInvalidFormat, "unsupported format %q (want one of %s)", format, strings.Join(supported, ", "))
}

// ValidateURL validates a URL string for safety.
// It accepts http(s) endpoints and ws(s) endpoints for the change feed.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	for _, scheme := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(rawURL, scheme) {
			return nil
		}
	}
	return New(ErrCodeInvalidInput, "URL must use http, https, ws or wss scheme")
}
