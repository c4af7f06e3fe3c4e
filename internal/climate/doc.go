// Package climate turns one Intesis adapter into a thermostat entity.
//
// A Controller owns the device client, its session and the reconciliation
// engine. It polls the device on a fixed interval, tracks availability and
// device info, and translates climate commands (HVAC mode, setpoint, fan,
// vanes, presets) into datapoint changes:
//
//	c := climate.NewController(client, climate.DefaultOptions())
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	_ = c.SetHVACMode(climate.HVACHeat) // powers on first when off
//	_ = c.SetTemperature(21.5)
//
// Commands return as soon as the change is exposed; the device is written and
// verified in the background. Subscribe delivers a Status after every change.
//
// MetricsCollector exports the cached state to Prometheus without touching
// the device.
package climate
