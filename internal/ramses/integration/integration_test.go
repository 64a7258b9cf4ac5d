// Package integration replays a short recorded session through
// transport.FileTransport into a live Dispatcher, the file-replay harness
// SPEC_FULL.md commits to for end-to-end decode coverage, mirroring
// original_source/tests_rf/virtual_rf.py's recorded-session fixtures.
package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ramses-rf/gateway/internal/config"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/dispatch"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
	"github.com/ramses-rf/gateway/internal/ramses/transport"
)

// session is a short recorded exchange: a controller announces itself
// (creating its TCS), then broadcasts a zone temperature (populating zone
// "00"), then addresses a TRV directly (creating and role-defaulting it).
const session = `000  I --- 01:054173 --:------ 01:054173 1F09 003 00116A
000  I --- 01:054173 --:------ 01:054173 30C9 003 000847
000  I --- 01:054173 04:123456 --:------ 2309 003 000898
`

func TestFileReplayDrivesDispatcherEndToEnd(t *testing.T) {
	registry := entities.NewRegistry()
	router := dispatch.New(registry, config.New(), zerolog.Nop(), false)

	ft := transport.NewFileTransport(zerolog.Nop(), strings.NewReader(session), func() time.Time { return time.Unix(0, 0) })

	onLine := func(line string, dtm time.Time) {
		pkt, err := packet.Parse(line, dtm)
		if err != nil {
			t.Fatalf("packet.Parse(%q): %v", line, err)
		}
		if _, err := router.Process(pkt, dtm); err != nil {
			t.Fatalf("Process(%q): %v", line, err)
		}
	}

	if err := ft.Start(onLine, nil); err != nil {
		t.Fatalf("FileTransport.Start() err = %v", err)
	}

	tcs := registry.System("01:054173")
	if tcs == nil {
		t.Fatal("session did not create the controller's TCS")
	}
	zone := tcs.Zones["00"]
	if zone == nil || zone.Latest(catalog.Code30C9) == nil {
		t.Fatal("session did not populate zone 00's temperature")
	}

	trv := registry.Device("04:123456")
	if trv == nil || trv.Role != catalog.RoleTRV {
		t.Fatalf("session did not create/role-default the TRV, got %#v", trv)
	}
}

// TestFileTransportNeverWritesToTheMedium covers spec.md §4.D: WriteLine on a
// replay transport only ever records the line for inspection.
func TestFileTransportNeverWritesToTheMedium(t *testing.T) {
	ft := transport.NewFileTransport(zerolog.Nop(), strings.NewReader(""), nil)

	if err := ft.WriteLine("000 RQ --- 18:000730 01:054173 --:------ 10E0 001 00"); err != nil {
		t.Fatalf("WriteLine() err = %v", err)
	}
	if got := ft.Written(); len(got) != 1 {
		t.Fatalf("Written() = %v, want 1 recorded line", got)
	}
}
