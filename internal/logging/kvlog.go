package logging

import (
	"fmt"

	"github.com/crewjam/rfc5424"
)

// KV builds a structured field, stringifying anything that isn't already
// a string.
func KV(name string, value interface{}) rfc5424.SDParam {
	if s, ok := value.(string); ok {
		return rfc5424.SDParam{Name: name, Value: s}
	}
	return rfc5424.SDParam{Name: name, Value: toString(value)}
}

func KVErr(err error) rfc5424.SDParam {
	if err == nil {
		return KV("error", "")
	}
	return KV("error", err.Error())
}

func toString(v interface{}) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// KVLogger wraps a Logger with a set of persistent fields (e.g. unit name
// and hash) that get appended to every call site's own fields.
type KVLogger struct {
	*Logger
	sds []rfc5424.SDParam
}

func NewLoggerWithKV(l *Logger, sds ...rfc5424.SDParam) *KVLogger {
	return &KVLogger{Logger: l, sds: sds}
}

func (kvl *KVLogger) AddKV(sds ...rfc5424.SDParam) { kvl.sds = append(kvl.sds, sds...) }

func (kvl *KVLogger) Debug(msg string, sds ...rfc5424.SDParam) {
	kvl.outputStructured(defaultDepth+1, DEBUG, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Info(msg string, sds ...rfc5424.SDParam) {
	kvl.outputStructured(defaultDepth+1, INFO, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Warn(msg string, sds ...rfc5424.SDParam) {
	kvl.outputStructured(defaultDepth+1, WARN, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Error(msg string, sds ...rfc5424.SDParam) {
	kvl.outputStructured(defaultDepth+1, ERROR, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}

func (kvl *KVLogger) Critical(msg string, sds ...rfc5424.SDParam) {
	kvl.outputStructured(defaultDepth+1, CRITICAL, msg, append(append([]rfc5424.SDParam{}, kvl.sds...), sds...)...)
}
