package logger

import (
	"regexp"

	"go.uber.org/zap/zapcore"
)

// Redaction happens at the sink boundary: business code logs plain values and
// the core masks anything that looks like an email address or phone number.

var (
	emailPattern = regexp.MustCompile(`\b([A-Za-z0-9])[A-Za-z0-9._%+-]*@([A-Za-z0-9])[A-Za-z0-9.-]*\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-.\s()]{6,}\d`)
)

// MaskPII masks email addresses and phone numbers in free text.
// "jane.doe@example.com" becomes "j***@e***.com".
func MaskPII(text string) string {
	if text == "" {
		return text
	}
	text = emailPattern.ReplaceAllString(text, "$1***@$2***.com")
	text = phonePattern.ReplaceAllStringFunc(text, func(m string) string {
		if len(m) <= 2 {
			return "***"
		}
		masked := []byte(m)
		for i := 0; i < len(masked)-2; i++ {
			if masked[i] >= '0' && masked[i] <= '9' {
				masked[i] = '*'
			}
		}
		return string(masked)
	})
	return text
}

type redactingCore struct {
	zapcore.Core
}

func newRedactingCore(c zapcore.Core) zapcore.Core {
	return &redactingCore{Core: c}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = MaskPII(ent.Message)
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if f.Type == zapcore.StringType {
			f.String = MaskPII(f.String)
		}
		out[i] = f
	}
	return out
}
