package logging

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans each entry out to its appenders. Subloggers share the appender slice but own their level.
type impl struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	appenders []Appender
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC, appenders: appenders}
}

func (imp *impl) Name() string { return imp.name }
func (imp *impl) SetLevel(lvl Level) { imp.level.Set(lvl) }
func (imp *impl) GetLevel() Level { return imp.level.Get() }

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return newImpl(name, imp.GetLevel(), imp.inUTC, imp.appenders...)
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// emit builds the entry and writes it everywhere. It must be called exactly two frames below the
// public logging method so the recorded caller is the user's code.
func (imp *impl) emit(level Level, msg string, fields []zapcore.Field) {
	entry := zapcore.Entry{
		LoggerName: imp.name,
		Level:      level.AsZap(),
		Message:    msg,
		Time:       time.Now(),
		Caller:     callerAt(3),
	}
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) print(level Level, args []interface{}) {
	if level >= imp.GetLevel() {
		imp.emit(level, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) printf(level Level, template string, args []interface{}) {
	if level >= imp.GetLevel() {
		imp.emit(level, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) printw(level Level, msg string, keysAndValues []interface{}) {
	if level >= imp.GetLevel() {
		imp.emit(level, msg, toFields(keysAndValues))
	}
}

var errUnpairedKey = errors.New("unpaired log key")

// toFields pairs up alternating keys and values. A trailing key without a value is kept with an
// error as its value.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) Debug(args ...interface{}) { imp.print(DEBUG, args) }
func (imp *impl) Debugf(template string, args ...interface{}) { imp.printf(DEBUG, template, args) }
func (imp *impl) Debugw(msg string, kv ...interface{}) { imp.printw(DEBUG, msg, kv) }

func (imp *impl) Info(args ...interface{}) { imp.print(INFO, args) }
func (imp *impl) Infof(template string, args ...interface{}) { imp.printf(INFO, template, args) }
func (imp *impl) Infow(msg string, kv ...interface{}) { imp.printw(INFO, msg, kv) }

func (imp *impl) Warn(args ...interface{}) { imp.print(WARN, args) }
func (imp *impl) Warnf(template string, args ...interface{}) { imp.printf(WARN, template, args) }
func (imp *impl) Warnw(msg string, kv ...interface{}) { imp.printw(WARN, msg, kv) }

func (imp *impl) Error(args ...interface{}) { imp.print(ERROR, args) }
func (imp *impl) Errorf(template string, args ...interface{}) { imp.printf(ERROR, template, args) }
func (imp *impl) Errorw(msg string, kv ...interface{}) { imp.printw(ERROR, msg, kv) }

// The Fatal variants log at error level and exit with status 1.

func (imp *impl) Fatal(args ...interface{}) {
	imp.print(ERROR, args)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.printf(ERROR, template, args)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, kv ...interface{}) {
	imp.printw(ERROR, msg, kv)
	os.Exit(1)
}

// callerAt describes the stack frame `skip` levels above its own caller.
func callerAt(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.NewEntryCaller(pc, file, line, true)
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
