package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldCandidateID is the structured log field key for the candidate identity.
	FieldCandidateID = "candidate_id"
	// FieldEmail is the structured log field key for the candidate address.
	FieldEmail = "email"
	// FieldJobID is the structured log field key for a follow-up job identity.
	FieldJobID = "job_id"
	// FieldRunID is the structured log field key for a batch pass identifier.
	FieldRunID = "run_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger, defaulting to a no-op
// logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CandidateFields returns the fields identifying a candidate. Empty values are dropped.
func CandidateFields(id, email string) []zap.Field {
	return StringFields(
		StringField{Key: FieldCandidateID, Value: id},
		StringField{Key: FieldEmail, Value: email},
	)
}

// WithCandidate attaches the candidate fields to the provided logger.
func WithCandidate(logger *zap.Logger, id, email string) *zap.Logger {
	return WithFields(logger, CandidateFields(id, email)...)
}
