// Package providercfg persists the outbound WhatsApp provider configuration.
//
// A single record, keyed by StoreKey, selects one provider and carries that
// provider's credentials. Records carry a version so older shapes can be
// migrated on load.
package providercfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CurrentVersion is the record version written by Save.
const CurrentVersion = 1

// StoreKey is the key under which the configuration record is stored.
const StoreKey = "wa_config_v1"

// DefaultAPIVersion is the Graph API version used when a cloud-api config omits one.
const DefaultAPIVersion = "v19.0"

// Provider names an outbound transport.
type Provider string

const (
	ProviderCloudAPI  Provider = "cloud-api"
	ProviderTwilio    Provider = "twilio"
	Provider360Dialog Provider = "360dialog"
	ProviderWhatsmeow Provider = "whatsmeow"
)

var (
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrMissingField       = errors.New("missing required field")
	ErrUnsupportedVersion = errors.New("unsupported config version")
)

// IsValidProvider checks if the given provider is supported.
func IsValidProvider(p Provider) bool {
	switch p {
	case ProviderCloudAPI, ProviderTwilio, Provider360Dialog, ProviderWhatsmeow:
		return true
	default:
		return false
	}
}

// Config is the persisted provider record. Provider selects which of the
// remaining fields are meaningful.
type Config struct {
	Version  int      `json:"version" yaml:"version"`
	Provider Provider `json:"provider" yaml:"provider"`

	// cloud-api
	Token         string `json:"token,omitempty" yaml:"token,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty" yaml:"phoneNumberId,omitempty"`
	APIVersion    string `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`

	// twilio
	AccountSID string `json:"accountSid,omitempty" yaml:"accountSid,omitempty"`
	AuthToken  string `json:"authToken,omitempty" yaml:"authToken,omitempty"`
	FromNumber string `json:"fromNumber,omitempty" yaml:"fromNumber,omitempty"`

	// 360dialog
	APIKey string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`

	// whatsmeow
	DBDSN       string `json:"dbDsn,omitempty" yaml:"dbDsn,omitempty"`
	QRPath      string `json:"qrPath,omitempty" yaml:"qrPath,omitempty"`
	NumericCode bool   `json:"numericCode,omitempty" yaml:"numericCode,omitempty"`
}

// Validate checks that the fields required by the selected provider are set.
func (c Config) Validate() error {
	required := map[Provider][]struct{ name, value string }{
		ProviderCloudAPI:  {{"token", c.Token}, {"phoneNumberId", c.PhoneNumberID}},
		ProviderTwilio:    {{"accountSid", c.AccountSID}, {"authToken", c.AuthToken}, {"fromNumber", c.FromNumber}},
		Provider360Dialog: {{"apiKey", c.APIKey}},
		ProviderWhatsmeow: nil,
	}
	fields, ok := required[c.Provider]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s: %w: %s", c.Provider, ErrMissingField, f.name)
		}
	}
	return nil
}

// GraphAPIVersion returns the configured Graph API version or the default.
func (c Config) GraphAPIVersion() string {
	if c.APIVersion == "" {
		return DefaultAPIVersion
	}
	return c.APIVersion
}

// TwilioFrom returns the sender address with the whatsapp: prefix Twilio expects.
func (c Config) TwilioFrom() string {
	if strings.HasPrefix(c.FromNumber, "whatsapp:") {
		return c.FromNumber
	}
	return "whatsapp:" + c.FromNumber
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.Token = mask(c.Token)
	c.AuthToken = mask(c.AuthToken)
	c.APIKey = mask(c.APIKey)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Decode parses a stored record and migrates it to CurrentVersion.
// Records without a version field are version 0 (the original unversioned shape).
func Decode(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode provider config: %w", err)
	}
	if err := migrate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func migrate(cfg *Config) error {
	switch {
	case cfg.Version == CurrentVersion:
		return nil
	case cfg.Version == 0:
		if cfg.Provider == ProviderCloudAPI && cfg.APIVersion == "" {
			cfg.APIVersion = DefaultAPIVersion
		}
		cfg.Version = CurrentVersion
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, cfg.Version)
	}
}
