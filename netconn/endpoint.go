package netconn

import (
	"strconv"
	"strings"
)

// ParseEndpoint splits a "host:port" string on its last colon, so an
// unbracketed IPv6 host such as "::1:9100" keeps its embedded colons.
// A bracketed host ("[::1]:9100") is unwrapped.
//
// Parameters:
//   - endpoint: The endpoint string, e.g. "192.168.0.205:9100"
//
// Returns:
//   - The host and the port
//   - A *ConfigError when there is no colon, the host is empty, or the port
//     is not an integer in 1-65535
func ParseEndpoint(endpoint string) (string, int, error) {
	idx := strings.LastIndex(endpoint, ":")
	if idx < 0 {
		return "", 0, &ConfigError{Input: endpoint, Reason: `missing ":" between host and port`}
	}

	host, rawPort := endpoint[:idx], endpoint[idx+1:]
	if len(host) >= 2 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}

	if host == "" {
		return "", 0, &ConfigError{Input: endpoint, Reason: "missing host"}
	}

	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return "", 0, &ConfigError{Input: endpoint, Reason: "port is not an integer", Err: err}
	}

	if err := validatePort(port); err != nil {
		err.Input = endpoint
		return "", 0, err
	}

	return host, port, nil
}

func validatePort(port int) *ConfigError {
	if port < 1 || port > 65535 {
		return &ConfigError{Reason: "port " + strconv.Itoa(port) + " out of range 1-65535"}
	}

	return nil
}
