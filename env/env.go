package env

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/agentuity/go-memocache/logger"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel resolves the --log-level flag, then MEMOCACHE_LOG_LEVEL, defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, ok := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.EnvLogLevel, "info"))
	if !ok {
		return logger.LevelInfo
	}
	return level
}

// NewLogger returns a console logger writing to the command's error stream by first checking the
// cobra.Command log-level flag, then use the MEMOCACHE_LOG_LEVEL environment value and falling back
// to the info logger level. Any floor levels given lower the level to the smallest of them.
func NewLogger(cmd *cobra.Command, floor ...logger.LogLevel) logger.Logger {
	log.SetFlags(0)
	level := LogLevel(cmd)
	for _, f := range floor {
		if f < level {
			level = f
		}
	}
	return logger.NewWriterLogger(cmd.ErrOrStderr(), level)
}

// ParseDuration parses a Go duration string, additionally accepting day
// and week units ("1d12h", "2w"). An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	if d < 0 {
		return 0, errors.Newf("invalid duration %q: must not be negative", s)
	}
	return d, nil
}

// Duration is a time.Duration that reads from YAML using ParseDuration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return str2duration.String(time.Duration(d)), nil
}

func (d Duration) String() string {
	return str2duration.String(time.Duration(d))
}
