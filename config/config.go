package config

import (
	"fmt"

	"github.com/robfig/config"
)

// ConfigFilePath is the default path to the config file
const ConfigFilePath string = "/etc/pagecache/api.conf"

// APISection is the [api] section of the config file
const APISection string = "api"

// Config file keys
const (
	Environment = "environment"

	ListenPort = "listen_port"

	MemcachedHost      = "memcached_host"
	MemcachedPort      = "memcached_port"
	MemcachedTimeoutMS = "memcached_timeout_ms"

	DefaultTTLSeconds = "default_ttl_seconds"
	LockTTLSeconds    = "lock_ttl_seconds"
	PollIntervalMS    = "poll_interval_ms"

	FetchTimeoutSeconds = "fetch_timeout_seconds"
	FetchMaxBytes       = "fetch_max_bytes"
	UserAgent           = "user_agent"
	ResolveRedirects    = "resolve_redirects"

	DatabaseHost     = "database_host"
	DatabasePort     = "database_port"
	DatabaseName     = "database_database"
	DatabaseUsername = "database_username"
	DatabasePassword = "database_password"

	S3Endpoint             = "s3_endpoint"
	S3AccessKeyID          = "s3_access_key_id"
	S3SecretAccessKey      = "s3_secret_access_key"
	S3BucketName           = "s3_bucket"
	S3Secure               = "s3_secure"
	OverflowThresholdBytes = "overflow_threshold_bytes"
)

var configRequiredStrings = []string{
	Environment,
}

var configRequiredInt64s = []string{
	ListenPort,
}

// Optional keys and the value used when they are absent
var configOptionalStrings = map[string]string{
	MemcachedHost:     "",
	UserAgent:         "pagecache/1.0",
	DatabaseHost:      "",
	DatabaseName:      "pagecache",
	DatabaseUsername:  "pagecache",
	DatabasePassword:  "",
	S3Endpoint:        "",
	S3AccessKeyID:     "",
	S3SecretAccessKey: "",
	S3BucketName:      "pagecache",
}

var configOptionalInt64s = map[string]int64{
	MemcachedPort:          11211,
	MemcachedTimeoutMS:     500,
	DefaultTTLSeconds:      10,
	LockTTLSeconds:         30,
	PollIntervalMS:         100,
	FetchTimeoutSeconds:    30,
	FetchMaxBytes:          10 * 1024 * 1024,
	DatabasePort:           5432,
	OverflowThresholdBytes: 900 * 1024,
}

var configOptionalBools = map[string]bool{
	ResolveRedirects: false,
	S3Secure:         true,
}

// ConfigStrings contains the string values for the given config keys
var ConfigStrings = map[string]string{}

// ConfigInt64s contains the int64 values for the given config keys
var ConfigInt64s = map[string]int64{}

// ConfigBools contains the bool values for the given config keys
var ConfigBools = map[string]bool{}

// ReadConfigFile loads the [api] section of the file at path into the
// Config maps. Missing required keys are an error; missing optional keys
// take their defaults.
func ReadConfigFile(path string) error {
	c, err := config.ReadDefault(path)
	if err != nil {
		return err
	}

	for _, key := range configRequiredStrings {
		s, err := c.String(APISection, key)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		ConfigStrings[key] = s
	}

	for _, key := range configRequiredInt64s {
		i, err := c.Int(APISection, key)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		ConfigInt64s[key] = int64(i)
	}

	for key, def := range configOptionalStrings {
		ConfigStrings[key] = def
		if c.HasOption(APISection, key) {
			s, err := c.String(APISection, key)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			ConfigStrings[key] = s
		}
	}

	for key, def := range configOptionalInt64s {
		ConfigInt64s[key] = def
		if c.HasOption(APISection, key) {
			i, err := c.Int(APISection, key)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if i <= 0 {
				return fmt.Errorf("%s must be positive, got %d", key, i)
			}
			ConfigInt64s[key] = int64(i)
		}
	}

	for key, def := range configOptionalBools {
		ConfigBools[key] = def
		if c.HasOption(APISection, key) {
			b, err := c.Bool(APISection, key)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			ConfigBools[key] = b
		}
	}

	return nil
}
