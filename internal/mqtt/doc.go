// Package mqtt bridges climate controllers to an MQTT broker.
//
// Each device is addressed by its serial number:
//
//	{base}/bridge/state                 online/offline, retained; also the last will
//	{base}/{serial}/availability        online/offline of the device, retained
//	{base}/{serial}/state               JSON state, see StatePayload
//	{base}/{serial}/{command}/set       mode, temperature, fan_mode, swing_mode,
//	                                    preset_mode, horizontal_vane, power, refresh
//
// When discovery is enabled, Home Assistant configs for the climate entity,
// its sensors, binary sensors and the horizontal vane select are published
// retained under {prefix}/{component}/{serial}/{object}/config.
//
// Discovery, state and the command subscription are (re)published on every
// connect, so a broker restart or a Home Assistant restart with a
// non-persistent broker recovers without restarting the bridge.
package mqtt
