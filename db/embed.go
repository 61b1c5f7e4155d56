// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for points, pickup windows, coupons and orders.
//
//go:embed migrations/001_schema.sql
var Schema string
