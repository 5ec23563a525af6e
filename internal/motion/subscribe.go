package motion

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-iot/internal/infrastructure/mqtt"
)

// Start subscribes to every device's status and sensor topics.
func (c *Coordinator) Start(sub Subscriber, qos byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}

	c.gate.Lock()
	c.closing = false
	c.gate.Unlock()

	topics := mqtt.Topics{}
	handlers := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{topics.AllDeviceStatus(), c.track(c.handleStatus)},
		{topics.AllDeviceSensors(), c.track(c.handleSensor)},
	}

	for _, h := range handlers {
		if err := sub.Subscribe(h.topic, qos, h.handler); err != nil {
			c.unsubscribeLocked(sub)
			return fmt.Errorf("subscribing to %s: %w", h.topic, err)
		}
		c.topics = append(c.topics, h.topic)
	}
	c.sub = sub

	c.logger.Info("motion coordinator subscribed", "topics", c.topics)
	return nil
}

// Stop removes the subscriptions made by Start and blocks until every
// handler already running has returned. Messages delivered after Stop
// are dropped.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.sub != nil {
		c.unsubscribeLocked(c.sub)
		c.sub = nil
	}
	c.mu.Unlock()

	c.gate.Lock()
	c.closing = true
	c.gate.Unlock()
	c.inflight.Wait()
}

// track admits h into the in-flight set unless the coordinator is stopping.
func (c *Coordinator) track(h mqtt.MessageHandler) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		c.gate.Lock()
		if c.closing {
			c.gate.Unlock()
			c.logger.Debug("message dropped, coordinator stopping", "topic", topic)
			return nil
		}
		c.inflight.Add(1)
		c.gate.Unlock()
		defer c.inflight.Done()

		return h(topic, payload)
	}
}

func (c *Coordinator) unsubscribeLocked(sub Subscriber) {
	for _, topic := range c.topics {
		if err := sub.Unsubscribe(topic); err != nil {
			c.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
	c.topics = nil
}

// handleStatus processes iot/{key}/status.
func (c *Coordinator) handleStatus(topic string, payload []byte) error {
	key, channel, err := mqtt.ParseDeviceTopic(topic)
	if err != nil {
		return err
	}
	if channel != mqtt.ChannelStatus {
		return fmt.Errorf("%w: expected status channel, got %s", mqtt.ErrInvalidTopic, channel)
	}
	report, err := mqtt.DecodeStatusReport(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	return c.OnConnectivityReport(ctx, key, report.Status)
}

// handleSensor processes iot/{key}/sensor. When both flags are set,
// detected is handled before cleared.
func (c *Coordinator) handleSensor(topic string, payload []byte) error {
	key, channel, err := mqtt.ParseDeviceTopic(topic)
	if err != nil {
		return err
	}
	if channel != mqtt.ChannelSensor {
		return fmt.Errorf("%w: expected sensor channel, got %s", mqtt.ErrInvalidTopic, channel)
	}
	report, err := mqtt.DecodeSensorReport(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if report.Detected() {
		if _, err := c.OnMotionDetected(ctx, key); err != nil {
			return err
		}
	}
	if report.Cleared() {
		if _, err := c.OnMotionCleared(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
