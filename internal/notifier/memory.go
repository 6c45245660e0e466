package notifier

import (
	"github.com/ictengine/ictalert/internal/ringbuf"
	"github.com/ictengine/ictalert/internal/types"
)

const DefaultMemoryLimit = 100

// MemoryChannel keeps the most recent alerts in a bounded ring
type MemoryChannel struct {
	name   string
	buffer *ringbuf.Buffer[types.Record]
}

// NewMemoryChannel creates a memory channel holding at most limit alerts
func NewMemoryChannel(limit int) *MemoryChannel {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemoryChannel{
		name:   "memory",
		buffer: ringbuf.New[types.Record](limit),
	}
}

func (c *MemoryChannel) Name() string { return c.name }

func (c *MemoryChannel) Role() types.Role { return types.RoleMemory }

func (c *MemoryChannel) Send(alert types.Alert) error {
	c.buffer.Push(alert.ToRecord())
	return nil
}

// Snapshot returns a copy of every stored alert, oldest first
func (c *MemoryChannel) Snapshot() []types.Record {
	return cloneRecords(c.buffer.Items())
}

// Recent returns copies of the newest limit alerts, oldest first
func (c *MemoryChannel) Recent(limit int) []types.Record {
	return cloneRecords(c.buffer.Recent(limit))
}

func cloneRecords(recs []types.Record) []types.Record {
	for i := range recs {
		recs[i] = recs[i].Clone()
	}
	return recs
}

// Len returns the number of stored alerts
func (c *MemoryChannel) Len() int {
	return c.buffer.Len()
}
