package logging

import (
	"io"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the timestamp layout used by every appender.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface, so
// zap cores (such as the test observer) can be used directly.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes tab-separated, human readable log lines to a writer.
type ConsoleAppender struct {
	io.Writer
	encoder zapcore.Encoder
}

// NewWriterAppender creates a ConsoleAppender writing to `writer`.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer, zapcore.NewConsoleEncoder(NewEncoderConfig())}
}

// Write outputs the log entry to the underlying stream.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = appender.Writer.Write(buf.Bytes())
	return err
}

// Sync is a no-op.
func (appender ConsoleAppender) Sync() error {
	return nil
}

// FileAppender writes JSON log lines to a size-rotated file.
type FileAppender struct {
	out     *lumberjack.Logger
	encoder zapcore.Encoder
}

// NewFileAppender creates an appender writing to `path`. The file is rotated once it grows past
// `maxSizeMB`, keeping at most `maxBackups` compressed old files.
func NewFileAppender(path string, maxSizeMB, maxBackups int) *FileAppender {
	return &FileAppender{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		},
		encoder: zapcore.NewJSONEncoder(NewEncoderConfig()),
	}
}

// Write outputs the log entry as one JSON object per line.
func (appender *FileAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync is a no-op; lumberjack does not buffer.
func (appender *FileAppender) Sync() error {
	return nil
}

// Close closes the current log file.
func (appender *FileAppender) Close() error {
	return appender.out.Close()
}
