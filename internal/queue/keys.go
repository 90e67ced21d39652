package queue

import "fmt"

// keys 单个队列的键布局：{prefix}:queue:{name}:...
type keys struct {
	base string
}

func newKeys(prefix, queue string) keys {
	return keys{base: fmt.Sprintf("%s:queue:%s:", prefix, queue)}
}

func (k keys) wait() string           { return k.base + "wait" }
func (k keys) active() string         { return k.base + "active" }
func (k keys) delayed() string        { return k.base + "delayed" }
func (k keys) failed() string         { return k.base + "failed" }
func (k keys) completed() string      { return k.base + "completed" }
func (k keys) suspects() string       { return k.base + "suspects" }
func (k keys) jobPrefix() string      { return k.base + "job:" }
func (k keys) leasePrefix() string    { return k.base + "lease:" }
func (k keys) job(id string) string   { return k.jobPrefix() + id }
func (k keys) lease(id string) string { return k.leasePrefix() + id }
