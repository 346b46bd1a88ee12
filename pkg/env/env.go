package env

import "os"

// Get reads an environment variable, treating empty the same as
// unset, and falls back to the provided default.
func Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
