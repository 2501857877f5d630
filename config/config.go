package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	VulnAlert VulnAlertConfig `yaml:"vulnalert"`
}

// VulnAlertConfig is the project configuration.
type VulnAlertConfig struct {
	DataDir string        `yaml:"data_dir"`
	Input   InputConfig   `yaml:"input"`
	Store   StoreConfig   `yaml:"store"`
	Mail    MailConfig    `yaml:"mail"`
	Sandbox SandboxConfig `yaml:"sandbox"`
	Methods MethodsConfig `yaml:"methods"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// InputConfig controls the event queue reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls one Redis connection.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	KeyPrefix    string        `yaml:"key_prefix"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// StoreConfig controls alert-definition and SecInfo-counter storage.
// When redis.addr is set, alert definitions and counters live in Redis;
// the management resources (tasks, credentials, formats, filters) are
// loaded from resources_file either way.
type StoreConfig struct {
	Redis         RedisConfig `yaml:"redis"`
	ResourcesFile string      `yaml:"resources_file"`
}

// MailConfig controls email delivery and size limits.
type MailConfig struct {
	// Mode selects "sendmail" (local MTA) or "smtp" (relay).
	Mode         string     `yaml:"mode"`
	SendmailPath string     `yaml:"sendmail_path"`
	SMTP         SMTPConfig `yaml:"smtp"`
	FromAddress  string     `yaml:"from_address"`
	// MaxAttachmentSize caps attached report bytes; larger reports are
	// dropped from the mail with a notice.
	MaxAttachmentSize int `yaml:"max_attachment_size"`
	// MaxIncludeSize caps inlined report bytes; larger reports are
	// truncated with a notice.
	MaxIncludeSize int `yaml:"max_include_size"`
}

// SMTPConfig controls the SMTP relay used when mail mode is "smtp".
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
}

// SandboxConfig controls external helper execution.
type SandboxConfig struct {
	// Privileged selects the credential-dropping runner; helper
	// processes then run as UID/GID below.
	Privileged bool   `yaml:"privileged"`
	User       string `yaml:"user"`
	UID        int    `yaml:"uid"`
	GID        int    `yaml:"gid"`
}

// MethodsConfig tunes individual alert methods.
type MethodsConfig struct {
	// StartTaskClient is the management client binary used by the
	// start-task method.
	StartTaskClient string `yaml:"start_task_client"`
	// TippingPointCACert is a PEM file holding the SMS CA certificate.
	TippingPointCACert string `yaml:"tippingpoint_ca_cert"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
