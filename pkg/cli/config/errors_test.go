package config_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/cli/config"
)

func TestConfigErrors_SentinelIdentification(t *testing.T) {
	sentinels := []error{
		config.ErrConfigNotFound,
		config.ErrInvalidConfig,
		config.ErrUnsupportedFormat,
	}

	for i, a := range sentinels {
		wrapped := goerr.Wrap(a, "wrapped", goerr.V(config.ConfigPathKey, "/tmp/recall.toml"))
		for j, b := range sentinels {
			gt.Value(t, errors.Is(wrapped, b)).Equal(i == j)
		}
	}
}

func TestConfigErrors_ContextValue(t *testing.T) {
	err := goerr.Wrap(config.ErrConfigNotFound, "config not found",
		goerr.V(config.ConfigPathKey, "/path/to/recall.toml"))

	var gerr *goerr.Error
	gt.Bool(t, errors.As(err, &gerr)).True()
	gt.Value(t, gerr.Values()[config.ConfigPathKey]).Equal("/path/to/recall.toml")
}
