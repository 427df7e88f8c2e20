package util

import (
	"fmt"
	"net"
	"regexp"
)

var (
	reAbsoluteURL    = regexp.MustCompile(`^https?://`)
	reSchemeRelative = regexp.MustCompile(`^//.`)
)

// FullURLRoot expands the configured URL root into an absolute URL that can
// be shown to the user. A root of "/" is resolved against the address the
// HTTP server listens on.
func FullURLRoot(root, address string) (string, error) {
	switch {
	case reAbsoluteURL.MatchString(root):
		return root, nil
	case reSchemeRelative.MatchString(root):
		return "http:" + root, nil
	case root == "/":
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return "", fmt.Errorf("invalid listen address %q: %v", address, err)
		}
		switch host {
		case "", "0.0.0.0":
			host = "127.0.0.1"
		case "::":
			host = "::1"
		}
		return fmt.Sprintf("http://%s/", net.JoinHostPort(host, port)), nil
	default:
		return "", fmt.Errorf("unsupported URL root format: %q", root)
	}
}
