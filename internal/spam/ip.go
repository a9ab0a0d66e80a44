package spam

import (
	"encoding/hex"
	"net"
	"strings"

	"github.com/parleylabs/parley/internal/forum"
)

const ipFieldSuffix = "IPAddress"

// decodeIPFields rewrites every packed IP-address field on the payload, top
// level and nested, to its human-readable form.
func decodeIPFields(data *forum.RecordPayload) {
	data.IPAddress = DecodeIP(data.IPAddress)
	decodeExtraIPs(data.Extra)
}

func decodeExtraIPs(fields map[string]any) {
	for key, value := range fields {
		switch typed := value.(type) {
		case string:
			if strings.HasSuffix(key, ipFieldSuffix) {
				fields[key] = DecodeIP(typed)
			}
		case []byte:
			if strings.HasSuffix(key, ipFieldSuffix) {
				fields[key] = DecodeIP(string(typed))
			}
		case map[string]any:
			decodeExtraIPs(typed)
		case []any:
			for _, item := range typed {
				if nested, ok := item.(map[string]any); ok {
					decodeExtraIPs(nested)
				}
			}
		}
	}
}

// DecodeIP converts a packed IP address (raw 4- or 16-byte form, or a
// hex-prefixed string) to dotted or colon notation. Values that already
// parse as readable addresses, and values that are not addresses at all,
// pass through unchanged.
func DecodeIP(value string) string {
	if value == "" {
		return ""
	}
	if ip := net.ParseIP(value); ip != nil {
		return ip.String()
	}
	packed := []byte(value)
	if strings.HasPrefix(value, "0x") {
		if decoded, err := hex.DecodeString(value[2:]); err == nil {
			packed = decoded
		}
	}
	if len(packed) == net.IPv4len || len(packed) == net.IPv6len {
		return net.IP(packed).String()
	}
	return value
}

// remoteHost strips a port from an observed remote address.
func remoteHost(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
