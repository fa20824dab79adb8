package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger. It is usable before Init is called.
var Log *logrus.Logger

func init() {
	Log = newLogger(&Config{})
}

type Config struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	Output io.Writer
}

func (c *Config) setDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
}

// Init replaces the global logger. A nil config means info level text output on stdout.
func Init(cfg *Config) {
	if cfg == nil {
		cfg = &Config{}
	}
	Log = newLogger(cfg)
}

func newLogger(cfg *Config) *logrus.Logger {
	cfg.setDefaults()

	l := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	l.SetOutput(cfg.Output)
	return l
}

// Component returns an entry tagged with the component name, e.g. "monitor" or "risk".
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
