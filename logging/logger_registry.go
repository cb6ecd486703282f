package logging

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

var globalLoggerRegistry = newRegistry()

// Registry tracks named loggers so that level patterns from the config can be applied to them.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]Logger
	logConfig []LoggerPatternConfig
}

func newRegistry() *Registry {
	return &Registry{
		loggers: make(map[string]Logger),
	}
}

func (lr *Registry) registerLogger(name string, logger Logger) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
}

func (lr *Registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

func (lr *Registry) updateLoggerLevel(name string, level Level) error {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok := lr.loggers[name]
	if !ok {
		return fmt.Errorf("logger named %s not recognized", name)
	}
	logger.SetLevel(level)
	return nil
}

// UpdateConfig applies the level patterns to every registered logger. Loggers matched by no
// pattern are reset to `defaultLevel`. Invalid patterns are reported to `errorLogger` and skipped.
func (lr *Registry) UpdateConfig(logConfig []LoggerPatternConfig, defaultLevel Level, errorLogger Logger) error {
	lr.mu.Lock()
	lr.logConfig = logConfig
	lr.mu.Unlock()

	appliedConfigs := make(map[string]Level)
	for _, lpc := range logConfig {
		if !validatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}

		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil {
			return err
		}

		level, err := LevelFromString(lpc.Level)
		if err != nil {
			return err
		}
		for _, name := range lr.getRegisteredLoggerNames() {
			if r.MatchString(name) {
				appliedConfigs[name] = level
			}
		}
	}

	for _, name := range lr.getRegisteredLoggerNames() {
		level, ok := appliedConfigs[name]
		if !ok {
			level = defaultLevel
		}
		if err := lr.updateLoggerLevel(name, level); err != nil {
			return err
		}
	}

	return nil
}

func (lr *Registry) getRegisteredLoggerNames() []string {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	registeredNames := make([]string, 0, len(lr.loggers))
	for name := range lr.loggers {
		registeredNames = append(registeredNames, name)
	}
	sort.Strings(registeredNames)
	return registeredNames
}

// registerConfigured registers `logger` under `name`, replacing any previous logger with that name,
// and applies the currently configured level patterns to it.
func (lr *Registry) registerConfigured(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.loggers[name] = logger
	for _, lpc := range lr.logConfig {
		if !validatePattern(lpc.Pattern) {
			continue
		}
		if matched, err := regexp.MatchString(buildRegexFromPattern(lpc.Pattern), name); err != nil || !matched {
			continue
		}
		if level, err := LevelFromString(lpc.Level); err == nil {
			logger.SetLevel(level)
		}
	}
	return logger
}

// RegisterLogger registers a named logger with the global registry.
func RegisterLogger(name string, logger Logger) {
	globalLoggerRegistry.registerLogger(name, logger)
}

// LoggerNamed returns the globally registered logger with the given name.
func LoggerNamed(name string) (Logger, bool) {
	return globalLoggerRegistry.loggerNamed(name)
}

// UpdateLoggerLevels applies level patterns to all globally registered loggers.
func UpdateLoggerLevels(logConfig []LoggerPatternConfig, defaultLevel Level, errorLogger Logger) error {
	return globalLoggerRegistry.UpdateConfig(logConfig, defaultLevel, errorLogger)
}

// RegisteredLoggerNames returns the sorted names of all globally registered loggers.
func RegisteredLoggerNames() []string {
	return globalLoggerRegistry.getRegisteredLoggerNames()
}
