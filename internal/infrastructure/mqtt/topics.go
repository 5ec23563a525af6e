package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
//
// Devices use iot/{locationKey}/{channel}. The location key is the pairing
// key shared by every device at one physical location (a lamp and fan pair).
const (
	// TopicPrefixDevice is the base for all device topics.
	TopicPrefixDevice = "iot"

	// TopicPrefixSystem is the base for service-level topics.
	TopicPrefixSystem = "graylogic/system"
)

// Device channels under iot/{locationKey}/.
const (
	ChannelAction         = "action"
	ChannelSettingsUpdate = "settings/update"
	ChannelStatus         = "status"
	ChannelSensor         = "sensor"
)

// Topics provides builders for the IoT topic tree.
//
//	topics := mqtt.Topics{}
//	topics.DeviceAction("hall-01")   // iot/hall-01/action
//	topics.AllDeviceSensors()        // iot/+/sensor
type Topics struct{}

// DeviceAction returns the command topic devices listen on.
//
// Example: iot/hall-01/action
func (Topics) DeviceAction(locationKey string) string {
	return deviceTopic(locationKey, ChannelAction)
}

// DeviceSettingsUpdate returns the topic carrying automation mode changes.
//
// Example: iot/hall-01/settings/update
func (Topics) DeviceSettingsUpdate(locationKey string) string {
	return deviceTopic(locationKey, ChannelSettingsUpdate)
}

// DeviceStatus returns the connectivity report topic.
//
// Example: iot/hall-01/status
func (Topics) DeviceStatus(locationKey string) string {
	return deviceTopic(locationKey, ChannelStatus)
}

// DeviceSensor returns the motion sensor topic.
//
// Example: iot/hall-01/sensor
func (Topics) DeviceSensor(locationKey string) string {
	return deviceTopic(locationKey, ChannelSensor)
}

// AllDeviceStatus matches connectivity reports from every location.
//
// Pattern: iot/+/status
func (Topics) AllDeviceStatus() string {
	return deviceTopic("+", ChannelStatus)
}

// AllDeviceSensors matches sensor events from every location.
//
// Pattern: iot/+/sensor
func (Topics) AllDeviceSensors() string {
	return deviceTopic("+", ChannelSensor)
}

// SystemStatus returns the service status topic used for LWT and the
// retained online/offline payloads.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

func deviceTopic(locationKey, channel string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, locationKey, channel)
}

// ParseDeviceTopic splits iot/{locationKey}/{channel} into its parts.
// It fails with ErrInvalidTopic for topics outside the device tree, an empty
// or wildcard location key, or an unknown channel.
func ParseDeviceTopic(topic string) (locationKey, channel string, err error) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixDevice+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a device topic", ErrInvalidTopic, topic)
	}

	locationKey, channel, ok = strings.Cut(rest, "/")
	if !ok || locationKey == "" || strings.ContainsAny(locationKey, "+#") {
		return "", "", fmt.Errorf("%w: %q has no location key", ErrInvalidTopic, topic)
	}

	switch channel {
	case ChannelAction, ChannelSettingsUpdate, ChannelStatus, ChannelSensor:
		return locationKey, channel, nil
	default:
		return "", "", fmt.Errorf("%w: unknown channel %q", ErrInvalidTopic, channel)
	}
}
