// Package services provides shared support for the external service clients:
// an error taxonomy that separates permanent, quota, and transient failures,
// and context annotation helpers for correlating log output across the
// pipeline stages.
package services
