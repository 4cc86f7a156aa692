// Package migrations embeds the goose migrations for the deployment and
// computer-sync database (deploySync.db).
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
