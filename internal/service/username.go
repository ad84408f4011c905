package service

import (
	"regexp"
	"strings"

	errs "igprofiler/pkg/errors"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)

// ExtractUsername accepts a bare username, an @handle or a profile URL.
func ExtractUsername(identifier string) (string, error) {
	s := strings.TrimSpace(identifier)
	if i := strings.Index(s, "instagram.com/"); i >= 0 {
		s = s[i+len("instagram.com/"):]
		if j := strings.IndexAny(s, "/?#"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimPrefix(s, "@")

	if !usernamePattern.MatchString(s) {
		return "", errs.New(errs.ErrorTypeValidation, "invalid Instagram profile: "+identifier)
	}
	return s, nil
}

// usernameFromID recovers the username from a <username>_<uuid> session id.
func usernameFromID(id string) string {
	if i := strings.LastIndexByte(id, '_'); i > 0 {
		return id[:i]
	}
	return id
}
