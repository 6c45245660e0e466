package notifier

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ictengine/ictalert/internal/types"
	"github.com/rs/zerolog"
)

type namedCallback struct {
	name string
	fn   func(types.Alert) error
}

// CallbackChannel invokes registered callbacks in registration order.
// One failing callback does not stop the rest.
type CallbackChannel struct {
	logger    zerolog.Logger
	mu        sync.RWMutex
	callbacks []namedCallback
}

func NewCallbackChannel(logger zerolog.Logger) *CallbackChannel {
	return &CallbackChannel{
		logger: logger.With().Str("component", "callback-channel").Logger(),
	}
}

func (c *CallbackChannel) Name() string { return "callback" }

func (c *CallbackChannel) Role() types.Role { return types.RoleCallback }

// Add registers fn under name; a name can only be registered once
func (c *CallbackChannel) Add(name string, fn func(types.Alert) error) bool {
	if fn == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cb := range c.callbacks {
		if cb.name == name {
			return false
		}
	}
	c.callbacks = append(c.callbacks, namedCallback{name: name, fn: fn})
	return true
}

// Remove unregisters a callback by name
func (c *CallbackChannel) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, cb := range c.callbacks {
		if cb.name == name {
			c.callbacks = append(c.callbacks[:i], c.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// Names returns the registered callback names in order
func (c *CallbackChannel) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, len(c.callbacks))
	for i, cb := range c.callbacks {
		names[i] = cb.name
	}
	return names
}

func (c *CallbackChannel) Send(alert types.Alert) error {
	c.mu.RLock()
	callbacks := make([]namedCallback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	c.mu.RUnlock()

	var errs []error
	for _, cb := range callbacks {
		if err := invoke(cb, alert); err != nil {
			c.logger.Error().
				Err(err).
				Str("callback", cb.name).
				Msg("Alert callback failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func invoke(cb namedCallback, alert types.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback %s panicked: %v", cb.name, r)
		}
	}()
	if err := cb.fn(alert); err != nil {
		return fmt.Errorf("callback %s: %w", cb.name, err)
	}
	return nil
}
