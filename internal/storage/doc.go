// Package storage persists teachers, staff grants, broadcasts and read
// confirmations through sqlx. SQLite (modernc.org/sqlite) is the default
// driver; Postgres (lib/pq) is selected with driver "postgres".
//
// Queries are written with '?' placeholders and rebound per driver.
package storage
