package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseAddArgs splits /add arguments into a locator and an optional name.
// Format: <url> [name...]
func ParseAddArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("usage: /add <url> [name]")
	}
	locator, err := ParseLocatorArg(parts[0])
	if err != nil {
		return "", "", err
	}
	return locator, strings.Join(parts[1:], " "), nil
}

// ParseLocatorArg validates a place URL argument.
func ParseLocatorArg(args string) (string, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return "", fmt.Errorf("place URL is required")
	}
	s = strings.Fields(s)[0]
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid place URL %q", s)
	}
	return s, nil
}

// ParseLimitArg reads an optional count, defaulting to def and capped at max.
func ParseLimitArg(args string, def, max int) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("count must be a positive number")
	}
	return min(n, max), nil
}
