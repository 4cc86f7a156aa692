package config

import (
	"flag"
	"os"
	"time"

	"github.com/Snshadow/update-server-server-sync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8530")
//	-k string   metadata store kind: deltazip, dir, sqlite
//	-s string   metadata store path
//	-d string   deploySync database file
//	-dsn string PostgreSQL DSN for a shared deploySync database
//	-cd string  local content directory
//	-cr string  content root URL written into file locations
//	-cb string  cookie binder: none, mac, aes
//	-cs string  cookie binder secret
//	-t int      cookie lifetime, hours
//	-m int      response cap (MaxUpdatesInResponse)
//	-legacy-bundle-actions   restore Evaluate for unapproved bundles
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-k", "-s", "-d", "-dsn", "-cd", "-cr", "-cb", "-cs", "-t", "-m",
		"-legacy-bundle-actions",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.StoreKind, "k", config.StoreKind, "metadata store kind (deltazip|dir|sqlite)")
	fs.StringVar(&config.StorePath, "s", config.StorePath, "metadata store path")
	fs.StringVar(&config.DeploySyncPath, "d", config.DeploySyncPath, "deploy sync database file")
	fs.StringVar(&config.DeploySyncDSN, "dsn", config.DeploySyncDSN, "deploy sync PostgreSQL DSN")
	fs.StringVar(&config.ContentDir, "cd", config.ContentDir, "local content directory")
	fs.StringVar(&config.ContentRoot, "cr", config.ContentRoot, "content root URL")
	fs.StringVar(&config.CookieBinder, "cb", config.CookieBinder, "cookie binder (none|mac|aes)")
	fs.StringVar(&config.CookieSecret, "cs", config.CookieSecret, "cookie binder secret")

	cookieTTLHours := fs.Int("t", int(config.CookieTTL.Hours()), "cookie lifetime (in hours)")

	fs.IntVar(&config.MaxUpdatesInResponse, "m", config.MaxUpdatesInResponse, "max updates per sync response")
	fs.BoolVar(&config.LegacyBundleActions, "legacy-bundle-actions", config.LegacyBundleActions,
		"default unapproved bundles to Evaluate instead of Install")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.CookieTTL = time.Duration(*cookieTTLHours) * time.Hour
}
