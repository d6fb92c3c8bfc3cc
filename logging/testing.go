package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

type testAppender struct {
	tb      testing.TB
	encoder zapcore.Encoder
}

// NewTestAppender returns an appender that writes through `tb.Log`, so output stays attached to the
// test that produced it and is hidden for passing tests unless `-v` is given.
func NewTestAppender(tb testing.TB) Appender {
	cfg := NewEncoderConfig()
	cfg.SkipLineEnding = true
	return &testAppender{tb: tb, encoder: zapcore.NewConsoleEncoder(cfg)}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	buf, err := tapp.encoder.EncodeEntry(entry, fields)
	if err != nil {
		tapp.tb.Logf("%s\t%s (cannot encode fields: %v)", entry.Level.CapitalString(), entry.Message, err)
		return err
	}
	defer buf.Free()
	tapp.tb.Log(buf.String())
	return nil
}

func (tapp *testAppender) Sync() error {
	return nil
}
