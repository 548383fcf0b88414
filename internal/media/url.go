package media

import "strings"

// NormalizeWSURL rewrites a LiveKit endpoint to the websocket scheme clients
// connect with. HTTP schemes map to their websocket counterparts; a bare host
// gets ws:// only for local development hosts and wss:// otherwise.
func NormalizeWSURL(raw string) string {
	switch {
	case raw == "":
		return raw
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
		return raw
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	}

	host := raw
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "ws://" + raw
	}
	return "wss://" + raw
}
