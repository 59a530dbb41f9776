package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New builds the process logger. "prod"/"production" selects JSON output at
// info level; anything else gets the development console encoder.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}
