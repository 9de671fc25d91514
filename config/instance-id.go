package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// GetInstanceID returns an identifier for the running instance.
// In order, it uses:
//   - The Azure Container Apps replica name, from CONTAINER_APP_REPLICA_NAME
//   - The "service.instance.id" attribute in OTEL_RESOURCE_ATTRIBUTES
//   - A random value
func GetInstanceID() (string, error) {
	if v := os.Getenv("CONTAINER_APP_REPLICA_NAME"); v != "" {
		return v, nil
	}

	if v := instanceIDFromOtelAttributes(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")); v != "" {
		return v, nil
	}

	b := make([]byte, 7)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random instance ID: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// OTEL_RESOURCE_ATTRIBUTES is a comma-separated list of key=value pairs, with URL-encoded values.
func instanceIDFromOtelAttributes(attrs string) string {
	for pair := range strings.SplitSeq(attrs, ",") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) != "service.instance.id" {
			continue
		}

		decoded, err := url.PathUnescape(strings.TrimSpace(val))
		if err != nil {
			return ""
		}
		return decoded
	}
	return ""
}
