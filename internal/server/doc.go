// Package server exposes climate controllers over HTTP.
//
// Routes:
//
//	GET  /healthcheck            200 when every device is reachable, else 503
//	GET  /metrics                Prometheus metrics, labelled by device serial
//	GET  /ws                     websocket stream of status updates
//	GET  /api/devices            configured devices
//	GET  /api/status             full status of one device
//	GET  /api/climate            climate view of one device
//	POST /api/climate            change modes and setpoint (202, optimistic view)
//	PUT  /api/datapoints/:uid    write a raw datapoint (uid number or name)
//	POST /api/refresh            poll the device now
//	GET  /api/diagnostics        redacted support dump
//
// Every /api route takes an optional ?device=<serial>; without it the
// first configured device is used.
//
// Websocket clients first receive the current status of every device, then
// one message per change:
//
//	{"type": "status", "device": "SN1234567", "status": {...}}
//
// Slow clients miss updates rather than stall the controllers.
package server
