package discovery

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/muurk/intesis/internal/deviceapi/devicetest"
)

func candidateFor(t *testing.T, url string) *Candidate {
	t.Helper()
	host, portStr, err := net.SplitHostPort(url[len("http://"):])
	if err != nil {
		t.Fatalf("SplitHostPort(%s) error = %v", url, err)
	}
	port, _ := strconv.Atoi(portStr)
	return &Candidate{IP: host, Port: port}
}

func TestProbeIntesisAdapter(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	s := NewScanner()
	d, err := s.Probe(context.Background(), candidateFor(t, dev.URL))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	if d.Serial != "SN1234567" {
		t.Errorf("Serial = %v, want SN1234567", d.Serial)
	}
	if d.Model != "INWMPUNI001I000" {
		t.Errorf("Model = %v, want INWMPUNI001I000", d.Model)
	}
	if d.Firmware != "1.3.3" {
		t.Errorf("Firmware = %v, want 1.3.3", d.Firmware)
	}
	if d.Name() != "Intesis INWMPUNI001I000" {
		t.Errorf("Name() = %v, want Intesis INWMPUNI001I000", d.Name())
	}
	if dev.Calls("login") != 0 {
		t.Errorf("login calls = %d, want 0", dev.Calls("login"))
	}
}

func TestProbeOtherHTTPService(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>router</html>"))
	}))
	defer other.Close()

	if _, err := NewScanner().Probe(context.Background(), candidateFor(t, other.URL)); err == nil {
		t.Error("Probe() should fail for a non-Intesis service")
	}
}

func TestProbeAll(t *testing.T) {
	dev1 := devicetest.NewServer()
	defer dev1.Close()
	dev2 := devicetest.NewServer()
	defer dev2.Close()
	dev2.SetInfo("sn", "SN7654321")

	other := httptest.NewServer(http.NotFoundHandler())
	defer other.Close()

	candidates := []*Candidate{
		candidateFor(t, dev1.URL),
		candidateFor(t, other.URL),
		candidateFor(t, dev2.URL),
	}

	s := NewScanner()
	s.ProbeTimeout = time.Second
	devices := s.ProbeAll(context.Background(), candidates)

	if len(devices) != 2 {
		t.Fatalf("ProbeAll() found %d devices, want 2", len(devices))
	}
	serials := map[string]bool{}
	for _, d := range devices {
		serials[d.Serial] = true
	}
	if !serials["SN1234567"] || !serials["SN7654321"] {
		t.Errorf("ProbeAll() serials = %v", serials)
	}
	if devices[0].Address() > devices[1].Address() {
		t.Error("ProbeAll() should sort by address")
	}
}

func TestProbeHost(t *testing.T) {
	dev := devicetest.NewServer()
	defer dev.Close()

	c := candidateFor(t, dev.URL)
	d, err := ProbeHost(context.Background(), c.IP, c.Port, time.Second)
	if err != nil {
		t.Fatalf("ProbeHost() error = %v", err)
	}
	if d.Serial != "SN1234567" {
		t.Errorf("Serial = %v, want SN1234567", d.Serial)
	}
}

func TestProbeHostUnreachable(t *testing.T) {
	dev := devicetest.NewServer()
	c := candidateFor(t, dev.URL)
	dev.Close()

	if _, err := ProbeHost(context.Background(), c.IP, c.Port, 500*time.Millisecond); err == nil {
		t.Error("ProbeHost() should fail for a closed port")
	}
}
