package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// --- CategorizeError Tests ---

func TestCategorizeError_NilError(t *testing.T) {
	result := CategorizeError(nil)
	if result != "None" {
		t.Errorf("CategorizeError(nil) = %q, want %q", result, "None")
	}
}

func TestCategorizeError_SentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"RobotsDisallowed", ErrRobotsDisallowed, "Policy_Robots"},
		{"NotFound", ErrNotFound, "HTTP_404"},
		{"CatalogAPI", ErrCatalogAPI, "Catalog_API"},
		{"RequestCreation", ErrRequestCreation, "Internal_RequestCreation"},
		{"ResponseBodyRead", ErrResponseBodyRead, "Network_BodyRead"},
		{"ConfigValidation", ErrConfigValidation, "Config_Validation"},
		{"UnknownMarkup", ErrUnknownMarkup, "Config_Validation"},
		{"ServerHTTPError", ErrServerHTTPError, "HTTP_5xx"},
		{"OtherHTTPError", ErrOtherHTTPError, "HTTP_OtherStatus"},
		{"Database", ErrDatabase, "Database_Other"},
		{"Filesystem", ErrFilesystem, "Filesystem_Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_RetryFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Server",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 503", ErrServerHTTPError)),
			expected: "RetryFailed_HTTPServer",
		},
		{
			name:     "Client429",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, fmt.Errorf("%w: status 429", ErrClientHTTPError)),
			expected: "RetryFailed_HTTPClient",
		},
		{
			name:     "Timeout",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("context deadline exceeded")),
			expected: "RetryFailed_NetworkTimeout",
		},
		{
			name:     "Refused",
			err:      fmt.Errorf("%w: %w", ErrRetryFailed, errors.New("dial tcp: connection refused")),
			expected: "RetryFailed_ConnectionRefused",
		},
		{
			name:     "Bare",
			err:      ErrRetryFailed,
			expected: "RetryFailed_Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ClientHTTPCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"403", fmt.Errorf("%w: status 403 Forbidden", ErrClientHTTPError), "HTTP_403"},
		{"401", fmt.Errorf("%w: status 401 Unauthorized", ErrClientHTTPError), "HTTP_401"},
		{"429", fmt.Errorf("%w: status 429 Too Many Requests", ErrClientHTTPError), "HTTP_429"},
		{"Generic4xx", fmt.Errorf("%w: status 400", ErrClientHTTPError), "HTTP_4xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ParsingErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Date", fmt.Errorf("%w: invalid watch date", ErrParsing), "Content_ParsingDate"},
		{"HTML", fmt.Errorf("%w: HTML document", ErrParsing), "Content_ParsingHTML"},
		{"JSON", fmt.Errorf("%w: JSON body", ErrParsing), "Content_ParsingJSON"},
		{"Generic", fmt.Errorf("parsing failed: %w", ErrParsing), "Content_ParsingOther"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestCategorizeError_ContextErrors(t *testing.T) {
	if got := CategorizeError(context.Canceled); got != "System_ContextCanceled" {
		t.Errorf("CategorizeError(Canceled) = %q", got)
	}
	if got := CategorizeError(context.DeadlineExceeded); got != "System_ContextDeadlineExceeded" {
		t.Errorf("CategorizeError(DeadlineExceeded) = %q", got)
	}
}

func TestCategorizeError_NetworkStrings(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Timeout", errors.New("connection timeout occurred"), "Network_TimeoutGeneric"},
		{"ConnectionRefused", errors.New("connection refused"), "Network_ConnectionRefused"},
		{"DNSLookup", errors.New("no such host"), "Network_DNSLookup"},
		{"TLS", errors.New("tls handshake failed"), "Network_TLS"},
		{"ConnectionReset", errors.New("reset by peer"), "Network_ConnectionReset"},
		{"Unknown", errors.New("some completely unknown error"), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CategorizeError(tt.err)
			if result != tt.expected {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

// --- SanitizeFilename Tests ---

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple", "filmfan", "filmfan"},
		{"WithSlash", "path/to/user", "path_to_user"},
		{"WithColon", "user:name", "user_name"},
		{"ConsecutiveUnderscores", "a___b", "a_b"},
		{"LeadingTrailingSpaces", "  user  ", "user"},
		{"Empty", "", "unknown"},
		{"OnlyInvalidChars", "<>:", "unknown"},
		{"ControlChars", "user\x01\x02name", "user_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename_LongNames(t *testing.T) {
	result := SanitizeFilename(strings.Repeat("a", 150))
	if len(result) > maxFilenameLength {
		t.Errorf("SanitizeFilename(long) length = %d, want <= %d", len(result), maxFilenameLength)
	}
}

// --- CacheKey Tests ---

func TestCacheKey_Normalizes(t *testing.T) {
	a := CacheKey("Heat ", "1995")
	b := CacheKey("heat", " 1995")
	if a != b {
		t.Errorf("CacheKey should ignore case and surrounding space: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("CacheKey length = %d, want 64", len(a))
	}
}

func TestCacheKey_PartBoundaries(t *testing.T) {
	if CacheKey("ab", "c") == CacheKey("a", "bc") {
		t.Error("CacheKey must keep part boundaries distinct")
	}
}

// --- WrapErrorf Tests ---

func TestWrapErrorf_NilError(t *testing.T) {
	if result := WrapErrorf(nil, "some context"); result != nil {
		t.Errorf("WrapErrorf(nil, ...) = %v, want nil", result)
	}
}

func TestWrapErrorf_WrapsError(t *testing.T) {
	original := errors.New("original error")
	wrapped := WrapErrorf(original, "context %s", "value")

	if !errors.Is(wrapped, original) {
		t.Error("WrapErrorf() result should wrap original error")
	}
	expectedMsg := "context value: original error"
	if wrapped.Error() != expectedMsg {
		t.Errorf("WrapErrorf() message = %q, want %q", wrapped.Error(), expectedMsg)
	}
}
