package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return errors.New("invalid duration")
	}
}

type Configuration struct {
	// Mode is checked by the caller after the reports were loaded
	Mode              string     `json:"mode"`
	Format            string     `json:"format" validate:"oneof=text json xml"`
	Dedup             string     `json:"dedup" validate:"omitempty,oneof=adjacent global"`
	MaxAttachmentSize int64      `json:"maxAttachmentSize" validate:"gte=0"`
	SniffOctetStream  bool       `json:"sniffOctetStream"`
	DnsServer         string     `json:"dnsServer" validate:"omitempty,hostname_port"`
	DnsConnectTimeout Duration   `json:"dnsConnectTimeout"`
	DnsTimeout        Duration   `json:"dnsTimeout"`
	DnsCacheTimeout   Duration   `json:"dnsCacheTimeout"`
	ImapConfig        IMAPConfig `json:"imap" validate:"-"`
	BatchSize         int        `json:"batchSize" validate:"gte=1"`
}

type IMAPConfig struct {
	Host       string   `json:"host" validate:"required,hostname_port"`
	SSL        bool     `json:"ssl"`
	User       string   `json:"user" validate:"required"`
	Pass       string   `json:"pass"`
	Folder     string   `json:"folder" validate:"required"`
	IgnoreCert bool     `json:"ignoreCert"`
	Timeout    Duration `json:"timeout"`
}

// Default returns the settings used for everything the config file and
// the command line do not set
func Default() Configuration {
	return Configuration{
		Mode:              "list",
		Format:            "text",
		Dedup:             "adjacent",
		MaxAttachmentSize: 20 * 1024 * 1024,
		DnsConnectTimeout: Duration{Duration: 1 * time.Second},
		DnsTimeout:        Duration{Duration: 10 * time.Second},
		DnsCacheTimeout:   Duration{Duration: 1 * time.Hour},
		ImapConfig: IMAPConfig{
			Folder:  "INBOX",
			Timeout: Duration{Duration: 1 * time.Minute},
		},
		BatchSize: 30,
	}
}

// Normalize lower cases the settings that select a mode or format so they
// match case insensitively
func (c *Configuration) Normalize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.Dedup = strings.ToLower(strings.TrimSpace(c.Dedup))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings that do not depend on the IMAP source
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateIMAP checks the settings needed to read reports from IMAP
func (c *Configuration) ValidateIMAP() error {
	if err := validate.Struct(c.ImapConfig); err != nil {
		return fmt.Errorf("invalid imap config: %w", err)
	}
	return nil
}

func GetConfig(defaults Configuration, f string) (*Configuration, error) {
	if f == "" {
		return nil, fmt.Errorf("please provide a valid config file")
	}

	b, err := os.ReadFile(f) // nolint: gosec
	if err != nil {
		return nil, err
	}
	reader := bytes.NewReader(b)

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err = decoder.Decode(&defaults); err != nil {
		return nil, err
	}

	defaults.Normalize()
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	return &defaults, nil
}
