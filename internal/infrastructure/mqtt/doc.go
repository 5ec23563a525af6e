// Package mqtt provides the broker connection for the IoT core.
//
// Devices talk to the core over a flat topic tree keyed by location:
//
//	iot/{locationKey}/status           device -> core   {"status":"online"}
//	iot/{locationKey}/sensor           device -> core   {"motion_detected":true}
//	iot/{locationKey}/action           core -> device   {"device":"lamp","action":"turn_on"}
//	iot/{locationKey}/settings/update  core -> device   {"device":"fan","mode":"auto"}
//
// The service itself announces online/offline on graylogic/system/status,
// with a Last Will so a crash is visible to other subscribers.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceSensors(), 1,
//	    func(topic string, payload []byte) error {
//	        key, _, err := mqtt.ParseDeviceTopic(topic)
//	        ...
//	    })
//
// Publish waits at most 5 seconds for the broker. Callers on the action
// path treat a failed publish as transient and log it.
package mqtt
