package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvConfig_GetString(t *testing.T) {
	t.Setenv("TEST_FOO", "bar")
	ec := NewEnvConfig("TEST")
	assert.Equal(t, "bar", ec.GetString("FOO", "default"))
	assert.Equal(t, "default", ec.GetString("MISSING", "default"))
}

func TestEnvConfig_GetInt(t *testing.T) {
	t.Setenv("TEST_N", "7")
	t.Setenv("TEST_BAD", "not-a-number")
	ec := NewEnvConfig("TEST")
	assert.Equal(t, 7, ec.GetInt("N", 1))
	assert.Equal(t, 1, ec.GetInt("BAD", 1))
	assert.Equal(t, 5, ec.GetInt("MISSING", 5))
}

func TestEnvConfig_GetBool(t *testing.T) {
	t.Setenv("TEST_B", "true")
	ec := NewEnvConfig("TEST")
	assert.True(t, ec.GetBool("B", false))
	assert.False(t, ec.GetBool("MISSING", false))
}

func TestEnvConfig_GetDuration(t *testing.T) {
	t.Setenv("TEST_D", "30s")
	ec := NewEnvConfig("TEST")
	assert.Equal(t, 30*time.Second, ec.GetDuration("D", time.Second))
	assert.Equal(t, time.Minute, ec.GetDuration("MISSING", time.Minute))
}

func TestEnvConfig_GetStringSlice(t *testing.T) {
	t.Setenv("TEST_LIST", "a, b ,c")
	ec := NewEnvConfig("TEST")
	assert.Equal(t, []string{"a", "b", "c"}, ec.GetStringSlice("LIST", nil))
	assert.Nil(t, ec.GetStringSlice("MISSING", nil))
}

func TestEnvConfig_NoPrefix(t *testing.T) {
	t.Setenv("UNPREFIXED", "v")
	ec := NewEnvConfig("")
	assert.Equal(t, "v", ec.GetString("UNPREFIXED", ""))
}

func TestValidator_RequireString(t *testing.T) {
	v := NewValidator()
	v.RequireString("Name", "")
	assert.False(t, v.IsValid())
	assert.Contains(t, v.ErrorString(), "Name is required")
}

func TestValidator_RequirePositiveInt(t *testing.T) {
	v := NewValidator()
	v.RequirePositiveInt("Concurrency", 0)
	assert.False(t, v.IsValid())
}

func TestValidator_RequireOneOf(t *testing.T) {
	v := NewValidator()
	v.RequireOneOf("Type", "bogus", []string{"a", "b"})
	require.False(t, v.IsValid())
	assert.Contains(t, v.ErrorString(), "Type must be one of: a, b")

	v2 := NewValidator()
	v2.RequireOneOf("Type", "a", []string{"a", "b"})
	assert.True(t, v2.IsValid())
}

func TestLoadFetcherConfig_Defaults(t *testing.T) {
	cfg, err := LoadFetcherConfig("FETCHERTEST")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.StorageType)
	assert.Equal(t, "memory", cfg.KVType)
	assert.Equal(t, "env", cfg.CredentialsProviderType)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.NotEmpty(t, cfg.RunID)
}

func TestLoadFetcherConfig_S3RequiresBucket(t *testing.T) {
	t.Setenv("FETCHERTEST_STORAGE_TYPE", "s3")
	_, err := LoadFetcherConfig("FETCHERTEST")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StorageBucket is required")
}

func TestLoadFetcherConfig_InvalidStorageType(t *testing.T) {
	t.Setenv("FETCHERTEST_STORAGE_TYPE", "ftp")
	_, err := LoadFetcherConfig("FETCHERTEST")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StorageType must be one of")
}
