package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPermanent marks failures that must never be retried: the condition
	// cannot heal on its own (missing source blob, malformed input, bad mode).
	ErrPermanent = errors.New("permanent failure")
	// ErrQuota marks upstream rate or quota exhaustion. Retryable, but the
	// source material must be retained so a later attempt can run.
	ErrQuota = errors.New("quota exhausted")
	// ErrTransient marks failures expected to heal under retry (timeouts,
	// 5xx responses, connection resets).
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsPermanent reports whether an error should bypass retry entirely.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IsQuota reports whether an error signals upstream rate/quota exhaustion.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuota)
}

// IsTransient reports whether an error is expected to heal under retry.
// Unclassified errors are treated as transient so the queue's bounded retry
// policy still applies.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	return true
}

// UserMessage extracts the human-readable portion of a wrapped stage error,
// stripping the sentinel prefix so persisted error details read cleanly.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{ErrPermanent, ErrQuota, ErrTransient} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
