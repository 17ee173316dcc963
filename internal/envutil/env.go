package envutil

import (
	"os"
	"strings"
)

// IsDev checks if we're running in development mode
// where cookie security requirements can be relaxed for local testing
func IsDev() bool {
	env := strings.ToLower(os.Getenv("CLAIMANT_GATEWAY_ENV"))
	return env == "development" || env == "dev"
}
