package security

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Textual principal: lowercase base32 groups of up to five characters
// joined by dashes, e.g. "rrkah-fqaaa-aaaaa-aaaaq-cai" or "aaaaa-aa".
var canisterIDRegex = regexp.MustCompile(`^[a-z2-7]{1,5}(-[a-z2-7]{1,5})*$`)

// ValidateCanisterID checks the textual shape of a canister id.
func ValidateCanisterID(id string) bool {
	if id == "" || len(id) > 63 {
		return false
	}
	return canisterIDRegex.MatchString(id)
}

// ParseClientID parses a decimal client id from a URL path segment.
func ParseClientID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid client id %q", raw)
	}
	return id, nil
}

// ValidateOrigin checks if request origin is allowed
func ValidateOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // No origin header = same origin or direct request
	}

	if len(allowedOrigins) == 0 {
		return true // Allow all if no restriction set
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}
