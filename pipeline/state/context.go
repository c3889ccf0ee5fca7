// Package state holds the per-run pipeline context: an append-only key/value
// store plus the ordered execution log, the single channel of communication
// between stages.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
)

var ErrEmptyValue = errors.New("context value is empty")

// Context carries all inputs, intermediate artifacts and final outputs of one
// pipeline run. Keys are write-once; the log grows one entry per stage
// attempt. A Context is owned by exactly one run and is not safe for
// concurrent writers.
type Context struct {
	RunID   string
	RunDate time.Time

	values map[string]any
	log    []contractx.Attempt
}

func New(runDate time.Time) *Context {
	return &Context{
		RunID:   uuid.NewString(),
		RunDate: runDate.UTC(),
		values:  make(map[string]any, 16),
	}
}

// Set writes a key exactly once. A second write of the same key, or an empty
// value, is rejected so the execution trace stays auditable and replayable.
func (c *Context) Set(key string, value any) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: empty key", contractx.ErrValidation)
	}
	if _, ok := c.values[key]; ok {
		return fmt.Errorf("%w: key %q already written", contractx.ErrKeyConflict, key)
	}
	if emptyValue(value) {
		return fmt.Errorf("%w: key %q", ErrEmptyValue, key)
	}
	c.values[key] = value
	return nil
}

func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

func (c *Context) GetString(key string) (string, bool) {
	v, ok := c.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (c *Context) GetStringSlice(key string) ([]string, bool) {
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	s, ok := v.([]string)
	return s, ok
}

func (c *Context) GetBool(key string) (bool, bool) {
	v, ok := c.values[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Keys returns all written keys in sorted order.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a shallow copy of the data keys for serialization.
func (c *Context) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Record appends one execution-log entry. The log is independent of the data
// keys and keeps failed and retried attempts.
func (c *Context) Record(stage string, status contractx.StageStatus, attemptErr error) {
	entry := contractx.Attempt{
		Stage:     stage,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if attemptErr != nil {
		entry.Error = attemptErr.Error()
	}
	c.log = append(c.log, entry)
}

// Log returns a copy of the execution log in append order.
func (c *Context) Log() []contractx.Attempt {
	return append([]contractx.Attempt(nil), c.log...)
}

func emptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	case []contractx.PlanItem:
		return len(v) == 0
	default:
		return false
	}
}
