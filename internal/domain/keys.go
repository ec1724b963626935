package domain

import (
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr/nip19"
)

const hexKeyLen = 64

// NormalizePublicKey accepts a hex or npub-encoded public key and returns
// the canonical lowercase hex form.
func NormalizePublicKey(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("public key is empty")
	}
	if strings.HasPrefix(v, "npub") {
		prefix, decoded, err := nip19.Decode(v)
		if err != nil {
			return "", fmt.Errorf("decode npub: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("unexpected bech32 prefix: %s", prefix)
		}
		return decoded.(string), nil
	}
	v = strings.ToLower(v)
	if !isHexKey(v) {
		return "", fmt.Errorf("public key is not 64 hex chars: %q", raw)
	}
	return v, nil
}

// NormalizeSecretKey accepts a hex or nsec-encoded secret key and returns
// the canonical lowercase hex form.
func NormalizeSecretKey(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", fmt.Errorf("secret key is empty")
	}
	if strings.HasPrefix(v, "nsec") {
		prefix, decoded, err := nip19.Decode(v)
		if err != nil {
			return "", fmt.Errorf("decode nsec: %w", err)
		}
		if prefix != "nsec" {
			return "", fmt.Errorf("unexpected bech32 prefix: %s", prefix)
		}
		return decoded.(string), nil
	}
	v = strings.ToLower(v)
	if !isHexKey(v) {
		return "", fmt.Errorf("secret key is not 64 hex chars")
	}
	return v, nil
}

func isHexKey(v string) bool {
	if len(v) != hexKeyLen {
		return false
	}
	for i := 0; i < len(v); i++ {
		ch := v[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return false
		}
	}
	return true
}

// ShortKey abbreviates a hex key for display and log output.
func ShortKey(pk string) string {
	if len(pk) <= 12 {
		return pk
	}
	return pk[:8] + "…" + pk[len(pk)-4:]
}
