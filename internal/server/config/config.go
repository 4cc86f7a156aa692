// Package config handles configuration for the update server, including
// defaults, JSON overlay, and command-line flags.
package config

import (
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/common"
)

// Config holds runtime settings for the update server.
//
// Fields:
//   - EndpointAddr: bind address for the HTTP endpoint.
//   - StoreKind / StorePath: metadata store backend ("deltazip", "dir",
//     "sqlite") and its root path.
//   - DeploySyncPath: embedded database file for deployments and computer
//     sync rows; DeploySyncDSN switches to a shared PostgreSQL database.
//   - ContentDir: local directory of mirrored payload files, served under
//     /Content/ when set. ContentRoot is the externally visible base URL
//     written into file locations.
//   - CookieBinder: "none", "mac" or "aes"; CookieSecret keys the binder.
//   - MaxUpdatesInResponse / CookieTTL: protocol knobs.
//   - LegacyBundleActions: restore the historical Evaluate default for
//     bundles without a deployment row.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint:
//     S3-compatible sink settings. The server loads them but does not use
//     them; usssctl fetch takes its own -s3-* flags.
type Config struct {
	EndpointAddr string

	StoreKind string
	StorePath string

	DeploySyncPath string
	DeploySyncDSN  string

	ContentDir  string
	ContentRoot string

	CookieBinder string
	CookieSecret string
	CookieTTL    time.Duration

	MaxUpdatesInResponse int
	LegacyBundleActions  bool

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":8530"
	c.StoreKind = "deltazip"
	c.StorePath = "metadata-store"
	c.DeploySyncPath = "deploySync.db"
	c.DeploySyncDSN = ""
	c.ContentDir = ""
	c.ContentRoot = ""
	c.CookieBinder = "none"
	c.CookieSecret = ""
	c.CookieTTL = common.CookieExpiration
	c.MaxUpdatesInResponse = common.MaxUpdatesInResponse
	c.LegacyBundleActions = false
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "wsus-content"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
