// Command imghost is a self-hosted image bed.
//
// Features:
// - Multi-file upload with content-hash deduplication
// - JPEG/PNG re-encoding with downscaling
// - Capability URLs with view counting
// - API tokens, session bearer tokens and expiring guest uploads
// - Redis or SQLite metadata, disk or S3 payloads
//
// Example usage:
//
//	imghost token create --name ci
//	imghost serve --config config/config.json
//	imghost cleanup --dry-run
//
// Configuration:
//
//	See config/config.json for server settings. Every core knob can be
//	overridden with an IMGHOST_* environment variable.
package main
