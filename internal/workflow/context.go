// Package workflow is the Workflow Engine (spec §4.1): a dependency-ordered,
// stage-executed job graph with typed output context, cleanup-on-failure,
// and cooperative cancellation.
package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
)

// outputKey identifies one published value by its producing job and name.
type outputKey struct {
	jobID string
	key   string
}

// Context is the keyed bag of JSON values namespaced by job_id (spec §3's
// WorkflowContext / Design Notes §9's typed accessor). Jobs publish under
// their own job_id; downstream jobs read by (producer_job_id, key).
// Outputs are never mutated after write: a second Write to the same key
// is rejected.
type Context struct {
	mu      sync.RWMutex
	outputs map[outputKey]json.RawMessage
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{outputs: make(map[outputKey]json.RawMessage)}
}

// Write publishes value under (jobID, key). Returns an error if the key was
// already written.
func (c *Context) Write(jobID, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal output %s/%s: %w", jobID, key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := outputKey{jobID: jobID, key: key}
	if _, exists := c.outputs[k]; exists {
		return fmt.Errorf("output %s/%s already written", jobID, key)
	}
	c.outputs[k] = data
	return nil
}

// AccessResult distinguishes "missing" from "type-mismatch" from a valid
// value, per Design Notes §9's call for a typed accessor over the
// untyped JSON bag.
type AccessResult int

const (
	AccessValue AccessResult = iota
	AccessMissing
	AccessTypeMismatch
)

// Read decodes the value published at (producerJobID, key) into out.
// Reading a missing key and reading a wrongly-typed value are distinct
// outcomes (spec §4.1).
func (c *Context) Read(producerJobID, key string, out interface{}) AccessResult {
	c.mu.RLock()
	data, ok := c.outputs[outputKey{jobID: producerJobID, key: key}]
	c.mu.RUnlock()

	if !ok {
		return AccessMissing
	}
	if err := json.Unmarshal(data, out); err != nil {
		return AccessTypeMismatch
	}
	return AccessValue
}

// Has reports whether (producerJobID, key) has been written.
func (c *Context) Has(producerJobID, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.outputs[outputKey{jobID: producerJobID, key: key}]
	return ok
}
