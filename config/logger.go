package config

import (
	"os"
	"strings"

	commonerrors "github.com/ClipFinance/swap-lib/common/errors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the logger every component receives.
//
// Parameters:
// - cfg: the level and format of the logger.
//
// Returns:
// - *logrus.Logger: the logger writing to stdout.
// - error: an error if the level or format is unknown.
func NewLogger(cfg LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "log level %q", cfg.Level)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "log format %q", cfg.Format)
	}

	return logger, nil
}
