package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the reasoner or embedding provider.
	FieldProvider = "provider"
	// FieldModel is the structured log field key for the model or deployment identifier.
	FieldModel = "model"
	// FieldFilename is the structured log field key for a CV filename.
	FieldFilename = "cv_filename"
	// FieldStage is the structured log field key for a ranking stage.
	FieldStage = "stage"
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

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	logger = OrNop(logger)
	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ModelFields describes which provider and model served a call.
// Empty values are dropped to keep entries compact.
func ModelFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithModel attaches provider and model fields to the logger.
func WithModel(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, ModelFields(provider, model)...)
}

// WithStage scopes the logger to a named pipeline stage.
func WithStage(logger *zap.Logger, stage string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldStage, Value: stage})...)
}
