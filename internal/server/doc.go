// Package server implements the HTTP surface of commentdm.
//
// This package provides:
//   - The Meta webhook endpoint: verification handshake on GET and comment
//     notifications on POST, acknowledged immediately and processed in the
//     background
//   - Password-gated admin pages to view activity, edit the reply text and
//     clear the dedupe list
//   - Health and status endpoints for monitoring
//   - Structured logging of all HTTP requests
//
// The server integrates with other packages:
//   - internal/replier: comment extraction and the serialized batch processor
//   - internal/store: reply text, dedupe keys and the activity log
//   - internal/history: optional SQLite activity archive
//   - pkg/templates: the admin dashboard page
//
// Security features:
//   - Optional HMAC-SHA256 payload signatures (APP_SECRET)
//   - Constant-time comparison of the verify token and admin password
//   - Payload size limits (1MB max)
//   - Rate limiting (global and admin)
package server
