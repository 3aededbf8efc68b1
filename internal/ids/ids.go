// Package ids generates sortable identifiers for outbox tasks and stored objects.
package ids

import (
	"strings"

	"github.com/segmentio/ksuid"
)

func New() string {
	return ksuid.New().String()
}

// NewWithPrefix returns "<prefix>_<ksuid>".
func NewWithPrefix(prefix string) string {
	prefix = strings.TrimSuffix(prefix, "_")
	if prefix == "" {
		return New()
	}
	return prefix + "_" + New()
}
