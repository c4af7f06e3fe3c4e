// Package discovery finds Intesis WiFi adapters on the local network.
//
// The adapters run a plain web server advertised over mDNS as "_http._tcp".
// Many other devices advertise the same service type, so discovery runs in
// two steps:
//  1. Browse collects every HTTP service seen before the timeout
//  2. ProbeAll sends an unauthenticated getinfo to each candidate and keeps
//     the ones that answer with an Intesis serial or model
//
// # Usage Example
//
//	devices, err := discovery.ScanForDevices(ctx, 5*time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Println(d)
//	}
//
// When mDNS is blocked, ProbeHost checks a single known address.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
