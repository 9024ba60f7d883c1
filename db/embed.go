// Package db provides the embedded database migrations and sample data.
package db

import "embed"

// Migrations holds the golang-migrate files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SampleCatalog is a small product and coupon catalog in the format read by
// the seed package.
//
//go:embed seed/catalog.json
var SampleCatalog []byte
