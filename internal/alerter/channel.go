package alerter

import (
	"fmt"

	"github.com/ictengine/ictalert/internal/types"
)

// Channel delivers alerts to one sink
type Channel interface {
	Name() string
	Role() types.Role
	Send(alert types.Alert) error
}

// RecentSource is implemented by channels that keep recent alerts
type RecentSource interface {
	Recent(limit int) []types.Record
}

// CallbackRegistry is implemented by channels that hold named callbacks
type CallbackRegistry interface {
	Add(name string, fn func(types.Alert) error) bool
}

// Delivery is the result of sending one alert to one channel
type Delivery struct {
	Channel string
	Role    types.Role
	Err     error
}

// OK reports whether the channel accepted the alert
func (d Delivery) OK() bool {
	return d.Err == nil
}

// fanOut sends each channel its own copy of alert. A failing or
// panicking channel does not stop the others.
func (m *Manager) fanOut(alert types.Alert, channels []Channel) []Delivery {
	deliveries := make([]Delivery, 0, len(channels))
	for _, ch := range channels {
		err := safeSend(ch, alert.Clone())
		m.metrics.Delivery(ch.Name(), err)
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("channel", ch.Name()).
				Str("category", alert.Category).
				Msg("Failed to deliver alert")
		}
		deliveries = append(deliveries, Delivery{
			Channel: ch.Name(),
			Role:    ch.Role(),
			Err:     err,
		})
	}
	return deliveries
}

func safeSend(ch Channel, alert types.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
	}()
	return ch.Send(alert)
}
