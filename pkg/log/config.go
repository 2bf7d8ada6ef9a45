package log

import (
	"fmt"
	"log/slog"
	"strings"
)

// Config declares a logger: level, format and outputs, plus optional
// redaction and sampling.
type Config struct {
	Level   string         `json:"level" yaml:"level" mapstructure:"level"`
	Format  string         `json:"format" yaml:"format" mapstructure:"format"`
	Outputs []OutputConfig `json:"outputs" yaml:"outputs" mapstructure:"outputs"`
	// RedactKeys replaces the values of these field keys with [REDACTED].
	RedactKeys []string `json:"redact_keys" yaml:"redact_keys" mapstructure:"redact_keys"`
	// SampleInitial entries per message are always logged, then one in SampleThereafter.
	SampleInitial    int `json:"sample_initial" yaml:"sample_initial" mapstructure:"sample_initial"`
	SampleThereafter int `json:"sample_thereafter" yaml:"sample_thereafter" mapstructure:"sample_thereafter"`
}

// OutputConfig selects an output: console, file (with Path) or null.
type OutputConfig struct {
	Type string `json:"type" yaml:"type" mapstructure:"type"`
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// ApplyConfig builds a Logger from cfg. A nil cfg yields info/text on stderr.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("unknown log output %q", oc.Type)
		}
	}
	l := NewLogger(opts...).(*BaseLogger)
	h := newHandler(l).redacting(cfg.RedactKeys).sampling(cfg.SampleInitial, cfg.SampleThereafter)
	l.slogLogger = slog.New(h)
	return l, nil
}
