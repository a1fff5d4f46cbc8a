// Package config handles configuration loading for the EBICS client.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows the key ring
// passphrase and database credentials to be injected at runtime.
//
// # Configuration Sections
//
//   - bank: host URL and ID, certified mode, pinned key digests, trusted roots
//   - user: partner and user IDs
//   - keys: key size and certificate subject
//   - keyRing: passphrase and storage backend (file or mongodb)
//   - transport: HTTP timeout
//   - log: level and format
//
// # Example Configuration
//
//	bank:
//	  url: https://ebics.example.com/ebicsweb
//	  hostId: EBIXHOST
//	  keyDigests:
//	    authentication: 9F3A...
//	    encryption: 41C0...
//
//	user:
//	  partnerId: PARTNER1
//	  userId: USER0001
//
//	keyRing:
//	  passphrase: ${EBICS_PASSPHRASE}
//	  storage:
//	    type: file
//	    directory: /var/lib/ebics
//
// See [Load] for loading configuration from a file.
package config

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Bank      BankConfig      `yaml:"bank"`
	User      UserConfig      `yaml:"user"`
	Product   string          `yaml:"product"`
	Language  string          `yaml:"language"`
	Keys      KeysConfig      `yaml:"keys"`
	KeyRing   KeyRingConfig   `yaml:"keyRing"`
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
}

// BankConfig describes the bank host
type BankConfig struct {
	URL                      string            `yaml:"url"`
	HostID                   string            `yaml:"hostId"`
	Certified                bool              `yaml:"certified"`
	IndependentKeySubmission bool              `yaml:"independentKeySubmission"`
	KeyDigests               *KeyDigestsConfig `yaml:"keyDigests"`
	// TrustedRoots is a PEM bundle of CAs that issue the bank certificates
	TrustedRoots string `yaml:"trustedRoots"`
}

// KeyDigestsConfig holds the bank key digests from the initialisation letter as hex
type KeyDigestsConfig struct {
	Authentication string `yaml:"authentication"`
	Encryption     string `yaml:"encryption"`
}

// UserConfig identifies the subscriber
type UserConfig struct {
	PartnerID string `yaml:"partnerId"`
	UserID    string `yaml:"userId"`
}

// KeysConfig controls key generation
type KeysConfig struct {
	Size         int    `yaml:"size"`
	CommonName   string `yaml:"commonName"`
	Organization string `yaml:"organization"`
	Country      string `yaml:"country"`
}

// KeyRingConfig holds key ring protection and storage settings
type KeyRingConfig struct {
	Passphrase string        `yaml:"passphrase"`
	Storage    StorageConfig `yaml:"storage"`
}

// StorageConfig selects the key ring store
type StorageConfig struct {
	// Type is "file" or "mongodb"
	Type      string        `yaml:"type"`
	Directory string        `yaml:"directory"`
	MongoDB   MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// TransportConfig holds HTTP client settings
type TransportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML data
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Product == "" {
		c.Product = "go-ebics"
	}
	if c.Language == "" {
		c.Language = "de"
	}
	if c.Keys.Size == 0 {
		c.Keys.Size = 2048
	}
	if c.Keys.CommonName == "" {
		c.Keys.CommonName = c.User.UserID
	}
	if c.KeyRing.Storage.Type == "" {
		c.KeyRing.Storage.Type = "file"
	}
	if c.KeyRing.Storage.Directory == "" {
		c.KeyRing.Storage.Directory = "."
	}
	if c.KeyRing.Storage.MongoDB.Database == "" {
		c.KeyRing.Storage.MongoDB.Database = "ebics"
	}
	if c.KeyRing.Storage.MongoDB.Collection == "" {
		c.KeyRing.Storage.MongoDB.Collection = "keyrings"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Bank.URL == "" {
		return fmt.Errorf("bank.url is required")
	}
	if c.Bank.HostID == "" {
		return fmt.Errorf("bank.hostId is required")
	}
	if c.User.PartnerID == "" || c.User.UserID == "" {
		return fmt.Errorf("user.partnerId and user.userId are required")
	}
	if c.KeyRing.Passphrase == "" {
		return fmt.Errorf("keyRing.passphrase is required")
	}
	if c.Keys.Size < 2048 || c.Keys.Size > 4096 {
		return fmt.Errorf("keys.size must be between 2048 and 4096, got %d", c.Keys.Size)
	}

	switch c.KeyRing.Storage.Type {
	case "file":
		// Valid
	case "mongodb":
		if c.KeyRing.Storage.MongoDB.URI == "" {
			return fmt.Errorf("keyRing.storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("keyRing.storage.type must be 'file' or 'mongodb', got '%s'", c.KeyRing.Storage.Type)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got '%s'", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
		// Valid
	default:
		return fmt.Errorf("log.format must be 'text' or 'json', got '%s'", c.Log.Format)
	}

	if d := c.Bank.KeyDigests; d != nil {
		if _, _, err := d.Decode(); err != nil {
			return err
		}
	}
	return nil
}

// Decode returns the binary digests. Spaces and colons in the hex values are ignored.
func (d *KeyDigestsConfig) Decode() (authentication, encryption []byte, err error) {
	if authentication, err = decodeDigest(d.Authentication); err != nil {
		return nil, nil, fmt.Errorf("bank.keyDigests.authentication: %w", err)
	}
	if encryption, err = decodeDigest(d.Encryption); err != nil {
		return nil, nil, fmt.Errorf("bank.keyDigests.encryption: %w", err)
	}
	return authentication, encryption, nil
}

func decodeDigest(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(b))
	}
	return b, nil
}

// LoadTrustedRoots reads the PEM bundle named by TrustedRoots.
// It returns nil when no bundle is configured.
func (b *BankConfig) LoadTrustedRoots() (*x509.CertPool, error) {
	if b.TrustedRoots == "" {
		return nil, nil
	}
	data, err := os.ReadFile(b.TrustedRoots)
	if err != nil {
		return nil, fmt.Errorf("bank.trustedRoots: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("bank.trustedRoots: no certificates found in %s", b.TrustedRoots)
	}
	return pool, nil
}
