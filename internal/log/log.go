package log

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Configuration represents a log configuration.
type Configuration struct {
	Level       Level
	Development bool
}

// New builds a logger writing to w (stderr when nil).
//
// Default level is zapcore.InfoLevel with JSON output; Development switches
// to human readable console output.
func New(c *Configuration, w io.Writer) *zap.Logger {
	if c == nil {
		c = &Configuration{}
	}
	if w == nil {
		w = os.Stderr
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "@timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	var encoder zapcore.Encoder
	if c.Development {
		encoderConfig.TimeKey = ""
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(c.Level.Level))
	opts := []zap.Option{zap.AddCaller()}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...)
}

// ParseFromEnvironment reads LOG_LEVEL and LOG_DEVELOPMENT into c. Values
// already set by flags are overwritten only when the variable is present.
func (c *Configuration) ParseFromEnvironment() {
	if c == nil {
		return
	}
	parseEnvLevel(c)
	parseEnvDevelopment(c)
}

func parseEnvLevel(c *Configuration) {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return
	}
	var level zapcore.Level
	if err := level.Set(l); err != nil {
		fmt.Fprintf(os.Stderr, "internal/log: failed to parse LOG_LEVEL: %v\n", err)
		return
	}
	c.Level = Level{Level: level}
}

func parseEnvDevelopment(c *Configuration) {
	d, ok := os.LookupEnv("LOG_DEVELOPMENT")
	if !ok {
		return
	}
	development, err := strconv.ParseBool(d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "internal/log: failed to parse LOG_DEVELOPMENT '%s' as bool\n", d)
		return
	}
	c.Development = development
}

// RegisterFlags registers logging configuration flags on command cmd and
// returns pointers to the values.
func RegisterFlags(cmd *cobra.Command) *Configuration {
	var c Configuration
	cmd.PersistentFlags().Var(&c.Level, "log.level", "configure log level. Available values are \"debug\", \"info\", \"warn\", \"error\" (fallback to LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&c.Development, "log.development", false, "configure log for development with human readable output (fallback to LOG_DEVELOPMENT)")
	return &c
}

var _ pflag.Value = &Level{}

// Level is a wrapped zapcore.Level that implements the pflag.Value interface.
type Level struct {
	zapcore.Level
}

func (*Level) Type() string {
	return "string"
}
