// Package cmd holds the lay binaries.
//
// relay: serves the relay HTTP API backed by SQLite, PostgreSQL or memory.
//
//	go run ./cmd/relay --config=relay.yaml
//	go run ./cmd/relay --addr=:8080 --dsn=lay.db
//
// lay: client CLI for publishing and reading posts.
//
//	go run ./cmd/lay keygen
//	go run ./cmd/lay profile set Alice
//	go run ./cmd/lay post "hello"
//	go run ./cmd/lay chat --relay=http://localhost:8080
//
// Shared configuration, logging and key handling live in cmd/common.
package cmd
