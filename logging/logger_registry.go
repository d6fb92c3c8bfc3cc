package logging

import (
	"regexp"
	"sync"
)

// Registry tracks named loggers so their levels can be changed by pattern at runtime.
type Registry struct {
	mu      sync.RWMutex
	loggers map[string]Logger
}

var globalLoggerRegistry = newRegistry()

func newRegistry() *Registry {
	return &Registry{loggers: make(map[string]Logger)}
}

func (lr *Registry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
}

func (lr *Registry) loggerNamed(name string) (Logger, bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok := lr.loggers[name]
	return logger, ok
}

type compiledPattern struct {
	re    *regexp.Regexp
	level Level
}

// UpdateConfig applies the level patterns to every registered logger. Loggers that no pattern
// matches are set to `defaultLevel` and later patterns win over earlier ones. Malformed patterns
// are reported to `errorLogger` and skipped. An unknown level fails the whole update before any
// logger changes.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, defaultLevel Level, errorLogger Logger) error {
	patterns := make([]compiledPattern, 0, len(logConfig))
	for _, lpc := range logConfig {
		if !validatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}
		level, err := LevelFromString(lpc.Level)
		if err != nil {
			return err
		}
		re, err := compilePattern(lpc.Pattern)
		if err != nil {
			return err
		}
		patterns = append(patterns, compiledPattern{re, level})
	}

	lr.mu.RLock()
	defer lr.mu.RUnlock()
	for name, logger := range lr.loggers {
		level := defaultLevel
		for _, p := range patterns {
			if p.re.MatchString(name) {
				level = p.level
			}
		}
		logger.SetLevel(level)
	}
	return nil
}

// RegisterLogger adds a logger to the global registry so UpdateLoggerLevels reaches it.
func RegisterLogger(name string, logger Logger) {
	globalLoggerRegistry.registerLogger(name, logger)
}

// UpdateLoggerLevels applies level patterns to all globally registered loggers.
func UpdateLoggerLevels(logConfig []LoggerPatternConfig, defaultLevel Level, errorLogger Logger) error {
	return globalLoggerRegistry.UpdateConfig(logConfig, defaultLevel, errorLogger)
}
