package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.EndpointAddr, ":8530")
	assert.Equal(t, c.StoreKind, "deltazip")
	assert.Equal(t, c.StorePath, "metadata-store")
	assert.Equal(t, c.DeploySyncPath, "deploySync.db")
	assert.Equal(t, c.DeploySyncDSN, "")
	assert.Equal(t, c.CookieBinder, "none")
	assert.Equal(t, c.CookieTTL, 5*24*time.Hour)
	assert.Equal(t, c.MaxUpdatesInResponse, 50)
	assert.False(t, c.LegacyBundleActions)
	assert.Equal(t, c.S3Bucket, "wsus-content")
	assert.Equal(t, c.S3Region, "us-east-1")
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	c := LoadConfig()

	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, c.EndpointAddr, ":8530")
	assert.Equal(t, c.StoreKind, "deltazip")
	assert.Equal(t, c.DeploySyncPath, "deploySync.db")
	assert.Equal(t, c.CookieTTL, 5*24*time.Hour)
	assert.Equal(t, c.MaxUpdatesInResponse, 50)
}
