package misc

import (
	"os"
	"os/user"
)

// CurrentUser returns the login name of the invoking user, or "unknown".
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// Hostname returns the host name, or "localhost" when it cannot be determined.
func Hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}
