package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/carbonledger/evidenced/pkg/errkind"
)

// Keyring holds per-application HMAC secrets.
type Keyring struct {
	secrets map[string]string
}

// ParseKeyring parses the HMAC_APP_KEYS format: a comma-separated list of
// app:secret pairs, e.g. "registry:s3cr3t,portal:0th3r". Whitespace around
// entries is ignored; empty input yields an empty keyring.
func ParseKeyring(raw string) (*Keyring, error) {
	kr := &Keyring{secrets: make(map[string]string)}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return kr, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		app, secret, ok := strings.Cut(entry, ":")
		if !ok || app == "" || secret == "" {
			return nil, fmt.Errorf("malformed HMAC key entry %q: want app:secret", entry)
		}
		kr.secrets[app] = secret
	}

	return kr, nil
}

// Len returns the number of registered applications.
func (k *Keyring) Len() int {
	return len(k.secrets)
}

// Sign computes the hex HMAC-SHA256 signature of body under the named
// application's secret. Used by tests and client tooling.
func (k *Keyring) Sign(app string, body []byte) (string, error) {
	secret, ok := k.secrets[app]
	if !ok {
		return "", fmt.Errorf("unknown application %q", app)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks that sig is the hex HMAC-SHA256 of body under the secret
// registered for app. The comparison is constant time, and an unknown
// application is indistinguishable from a bad signature: both return the
// same AUTHENTICATION error.
func (k *Keyring) Verify(app, sig string, body []byte) error {
	secret, known := k.secrets[app]
	if !known {
		// Run the MAC against a dummy secret anyway so timing does not
		// reveal whether the application exists.
		secret = "-"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(sig)
	if err != nil || !known || !hmac.Equal(expected, got) {
		return errkind.New(errkind.Authentication, "invalid application signature")
	}
	return nil
}
