package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxNameLength bounds the optional display name of a deployment.
const MaxNameLength = 100

// =============================================================================
// Deploy Request Validation
// =============================================================================

// ValidateDeployFields validates the fields of a deploy request.
// Returns the offending field and a message, or empty strings when valid.
//
// Reachability of the repository is not checked here; an unreachable
// source fails the pipeline, not the request.
func ValidateDeployFields(repoURL, name string) (field, message string) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return "repoUrl", "repoUrl is required"
	}
	// git would read a leading dash as an option.
	if strings.HasPrefix(repoURL, "-") {
		return "repoUrl", "repoUrl must not start with '-'"
	}
	if strings.ContainsFunc(repoURL, unicode.IsSpace) {
		return "repoUrl", "repoUrl must not contain whitespace"
	}

	if utf8.RuneCountInString(name) > MaxNameLength {
		return "name", "name must be at most 100 characters"
	}
	if strings.ContainsFunc(name, unicode.IsControl) {
		return "name", "name must not contain control characters"
	}
	return "", ""
}
