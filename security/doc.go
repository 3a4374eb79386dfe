// Package security provides the relay's security plumbing: per-IP
// rate limiting, request ID correlation, client IP extraction behind
// trusted proxies, response security headers, and audit logging with
// hashed sensitive values.
package security
