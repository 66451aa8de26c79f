// Package mobaxtermkeygen derives and checks MobaXterm license keys for a
// given username and version. Key derivation is deterministic, so a key can
// be validated by re-deriving it from the same inputs.
package mobaxtermkeygen

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	defaultVersion = "22.0"
	licenseType    = "Professional"
	licenseYears   = 10

	kdfSalt       = "MobaXterm"
	kdfIterations = 10000
	kdfKeyLength  = 32
)

// LicenseInfo is the record written alongside a generated key.
type LicenseInfo struct {
	Username       string `yaml:"username" json:"username"`
	Version        string `yaml:"version" json:"version"`
	Type           string `yaml:"type" json:"type"`
	Created        string `yaml:"created" json:"created"`
	Expires        string `yaml:"expires" json:"expires"`
	LicenseKey     string `yaml:"license_key" json:"license_key"`
	ActivationCode string `yaml:"activation_code" json:"activation_code"`
}

// GenerateKey derives the license key for a username and version:
// PBKDF2-HMAC-SHA256 over "user:version:type", base64-encoded and grouped
// in blocks of four characters.
func GenerateKey(username, version string) string {
	if version == "" {
		version = defaultVersion
	}
	seed := fmt.Sprintf("%s:%s:%s", username, version, licenseType)
	key := pbkdf2.Key([]byte(seed), []byte(kdfSalt), kdfIterations, kdfKeyLength, sha256.New)
	encoded := base64.StdEncoding.EncodeToString(key)

	var groups []string
	for i := 0; i < len(encoded); i += 4 {
		end := i + 4
		if end > len(encoded) {
			end = len(encoded)
		}
		groups = append(groups, encoded[i:end])
	}
	return strings.Join(groups, "-")
}

// ValidateKey reports whether key matches the derivation for username and
// version. Separators are ignored; comparison is constant time.
func ValidateKey(username, key, version string) bool {
	expected := strings.ReplaceAll(GenerateKey(username, version), "-", "")
	got := strings.ReplaceAll(key, "-", "")
	if len(expected) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// ActivationCode derives the activation code for a username/key pair: the
// first 16 hex characters of SHA-256("user:key"), uppercased.
func ActivationCode(username, key string) string {
	sum := sha256.Sum256([]byte(username + ":" + key))
	return strings.ToUpper(fmt.Sprintf("%x", sum)[:16])
}

// NewLicenseInfo assembles the full license record for a username/version.
func NewLicenseInfo(username, version string, now time.Time) LicenseInfo {
	if version == "" {
		version = defaultVersion
	}
	key := GenerateKey(username, version)
	return LicenseInfo{
		Username:       username,
		Version:        version,
		Type:           licenseType,
		Created:        now.Format(time.RFC3339),
		Expires:        now.AddDate(licenseYears, 0, 0).Format(time.RFC3339),
		LicenseKey:     key,
		ActivationCode: ActivationCode(username, key),
	}
}
