package server

import "strings"

func parseWebsocketPath(path string) (string, bool) {
	const prefix = "/ws/game/"
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return strings.ToUpper(rest), true
}

// parseRoomPath splits /api/v1/rooms/{code}[/{action}] into its parts.
func parseRoomPath(path string) (string, string, bool) {
	const prefix = "/api/v1/rooms/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return strings.ToUpper(parts[0]), "", true
	}
	if len(parts) == 2 {
		return strings.ToUpper(parts[0]), parts[1], true
	}
	return "", "", false
}
