package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.conf")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadConfigFile(t *testing.T) {
	path := writeConfig(t, `[api]
environment: test
listen_port: 8080
memcached_host: cache.internal
default_ttl_seconds: 60
resolve_redirects: true
`)

	if err := ReadConfigFile(path); err != nil {
		t.Fatalf("ReadConfigFile() %+v", err)
	}

	if ConfigStrings[Environment] != "test" {
		t.Errorf("%s = %q should be test", Environment, ConfigStrings[Environment])
	}
	if ConfigStrings[MemcachedHost] != "cache.internal" {
		t.Errorf("%s = %q should be cache.internal", MemcachedHost, ConfigStrings[MemcachedHost])
	}

	message := "%s = %d should be %d"
	if ConfigInt64s[ListenPort] != 8080 {
		t.Errorf(message, ListenPort, ConfigInt64s[ListenPort], 8080)
	}
	if ConfigInt64s[DefaultTTLSeconds] != 60 {
		t.Errorf(message, DefaultTTLSeconds, ConfigInt64s[DefaultTTLSeconds], 60)
	}
	// Defaults for what the file leaves out
	if ConfigInt64s[MemcachedPort] != 11211 {
		t.Errorf(message, MemcachedPort, ConfigInt64s[MemcachedPort], 11211)
	}
	if ConfigInt64s[LockTTLSeconds] != 30 {
		t.Errorf(message, LockTTLSeconds, ConfigInt64s[LockTTLSeconds], 30)
	}

	if !ConfigBools[ResolveRedirects] {
		t.Errorf("%s should be true", ResolveRedirects)
	}
	if !ConfigBools[S3Secure] {
		t.Errorf("%s should default to true", S3Secure)
	}
}

func TestReadConfigFileMissingRequired(t *testing.T) {
	path := writeConfig(t, `[api]
environment: test
`)

	if err := ReadConfigFile(path); err == nil {
		t.Errorf("ReadConfigFile() should fail without %s", ListenPort)
	}
}

func TestReadConfigFileRejectsNonPositive(t *testing.T) {
	path := writeConfig(t, `[api]
environment: test
listen_port: 8080
default_ttl_seconds: 0
`)

	if err := ReadConfigFile(path); err == nil {
		t.Errorf("ReadConfigFile() should reject %s = 0", DefaultTTLSeconds)
	}
}
