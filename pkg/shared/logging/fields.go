// Package logging supplies standard structured-log field helpers shared by
// every package that logs through go.uber.org/zap.
package logging

import "time"

// Fields is a chainable bag of standard log fields. Call sites build one
// with NewFields().Component(...).Operation(...) and hand it to a zap
// logger via ToZapFields (see logger.go).
type Fields map[string]interface{}

func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(resourceType, name string) Fields {
	f["resource_type"] = resourceType
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) Incident(id string) Fields {
	f["incident_id"] = id
	return f
}

func (f Fields) With(key string, value interface{}) Fields {
	f[key] = value
	return f
}
