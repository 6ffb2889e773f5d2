package infrastructure

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

const (
	httpMethodKey     = "http.method"
	httpPathKey       = "http.path"
	httpStatusCodeKey = "http.status_code"
	statusKey         = "status"
	priorityKey       = "priority"
	entityKindKey     = "entity.kind"
)

func HTTPMethodAttr(method string) attribute.KeyValue {
	return attribute.String(httpMethodKey, method)
}

func HTTPPathAttr(path string) attribute.KeyValue {
	return attribute.String(httpPathKey, path)
}

func HTTPStatusCodeAttr(code int) attribute.KeyValue {
	return attribute.String(httpStatusCodeKey, fmt.Sprintf("%d", code))
}

func StatusAttr(status string) attribute.KeyValue {
	return attribute.String(statusKey, status)
}

func PriorityAttr(priority string) attribute.KeyValue {
	return attribute.String(priorityKey, priority)
}

// EntityKindAttr tags a topology declaration metric with the kind of
// entity declared: exchange, queue, or binding.
func EntityKindAttr(kind string) attribute.KeyValue {
	return attribute.String(entityKindKey, kind)
}
