package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/config"
	"github.com/muurk/intesis/internal/deviceapi/devicetest"
)

func bridgeDevice(dev *devicetest.Server) config.BridgeDevice {
	return config.BridgeDevice{
		Host:         dev.URL,
		Username:     "admin",
		Password:     "admin",
		ScanInterval: 20 * time.Millisecond,
		Timeout:      2 * time.Second,
	}
}

func closeAll(controllers []*climate.Controller) {
	for _, c := range controllers {
		c.Close()
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartControllersKeepsPolling(t *testing.T) {
	first := devicetest.NewServer()
	defer first.Close()
	second := devicetest.NewServer()
	defer second.Close()
	second.SetInfo("sn", "SN7654321 / 0002")

	cfg := &config.BridgeConfig{Devices: []config.BridgeDevice{bridgeDevice(first), bridgeDevice(second)}}
	controllers, err := startControllers(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("startControllers() error = %v", err)
	}
	defer closeAll(controllers)

	if len(controllers) != 2 {
		t.Fatalf("len(controllers) = %d, want 2", len(controllers))
	}

	for _, dev := range []*devicetest.Server{first, second} {
		before := dev.Calls("getdatapointvalue")
		waitFor(t, "routine polls", func() bool {
			return dev.Calls("getdatapointvalue") >= before+3
		})
	}
	for _, c := range controllers {
		if !c.Polling() {
			t.Errorf("%s: Polling() = false, want true", c.Host())
		}
	}
}

func TestStartControllersPollingDetectsOutage(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	cfg := &config.BridgeConfig{Devices: []config.BridgeDevice{bridgeDevice(dev)}}
	controllers, err := startControllers(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("startControllers() error = %v", err)
	}
	defer closeAll(controllers)

	dev.Close()
	waitFor(t, "device marked unavailable", func() bool {
		return !controllers[0].Available()
	})
}

func TestStartControllersRejectsDuplicateSerials(t *testing.T) {
	first := devicetest.NewServer()
	defer first.Close()
	second := devicetest.NewServer()
	defer second.Close()

	cfg := &config.BridgeConfig{Devices: []config.BridgeDevice{bridgeDevice(first), bridgeDevice(second)}}
	controllers, err := startControllers(context.Background(), cfg, zap.NewNop())
	if err == nil {
		closeAll(controllers)
		t.Fatal("startControllers() error = nil, want duplicate serial error")
	}
	if !strings.Contains(err.Error(), "SN1234567") {
		t.Errorf("error = %q, want it to name the serial", err)
	}

	// the started controllers were closed, so polling stopped
	time.Sleep(50 * time.Millisecond)
	before := first.Calls("getdatapointvalue")
	time.Sleep(100 * time.Millisecond)
	if got := first.Calls("getdatapointvalue"); got != before {
		t.Errorf("getdatapointvalue calls = %d after rejection, want %d", got, before)
	}
}

func TestStartControllersUnreachableDevice(t *testing.T) {
	up := devicetest.NewServer()
	defer up.Close()
	down := devicetest.NewServer()
	downDevice := bridgeDevice(down)
	down.Close()

	cfg := &config.BridgeConfig{Devices: []config.BridgeDevice{bridgeDevice(up), downDevice}}
	controllers, err := startControllers(context.Background(), cfg, zap.NewNop())
	if err == nil {
		closeAll(controllers)
		t.Fatal("startControllers() error = nil, want unreachable device error")
	}
	if !strings.Contains(err.Error(), downDevice.Host) {
		t.Errorf("error = %q, want it to name %s", err, downDevice.Host)
	}
}
