package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/flagx"
	"github.com/Snshadow/update-server-server-sync/internal/timex"
)

// JsonConfig is the DTO for the optional JSON configuration file. Interval
// fields use timex.Duration so both "120h" and integer nanoseconds parse.
// After unmarshalling its fields are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddr         string         `json:"endpoint_addr"`
	StoreKind            string         `json:"store_kind"`
	StorePath            string         `json:"store_path"`
	DeploySyncPath       string         `json:"deploy_sync_path"`
	DeploySyncDSN        string         `json:"deploy_sync_dsn"`
	ContentDir           string         `json:"content_dir"`
	ContentRoot          string         `json:"content_root"`
	CookieBinder         string         `json:"cookie_binder"`
	CookieSecret         string         `json:"cookie_secret"`
	CookieTTL            timex.Duration `json:"cookie_ttl"`
	MaxUpdatesInResponse int            `json:"max_updates_in_response"`
	LegacyBundleActions  bool           `json:"legacy_bundle_actions"`
	S3RootUser           string         `json:"s3_root_user"`
	S3RootPassword       string         `json:"s3_root_password"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flags; without those flags nothing is loaded. An unreadable or
// invalid file panics: the operator asked for a file that cannot be used.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.StoreKind = c.StoreKind
	config.StorePath = c.StorePath
	config.DeploySyncPath = c.DeploySyncPath
	config.DeploySyncDSN = c.DeploySyncDSN
	config.ContentDir = c.ContentDir
	config.ContentRoot = c.ContentRoot
	config.CookieBinder = c.CookieBinder
	config.CookieSecret = c.CookieSecret
	config.CookieTTL = time.Duration(c.CookieTTL.Duration)
	config.MaxUpdatesInResponse = c.MaxUpdatesInResponse
	config.LegacyBundleActions = c.LegacyBundleActions
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
