package main

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ramses-rf/gateway/internal/config"
	"github.com/ramses-rf/gateway/internal/gwylog"
	"github.com/ramses-rf/gateway/internal/ramses/catalog"
	"github.com/ramses-rf/gateway/internal/ramses/command"
	"github.com/ramses-rf/gateway/internal/ramses/control"
	"github.com/ramses-rf/gateway/internal/ramses/discovery"
	"github.com/ramses-rf/gateway/internal/ramses/dispatch"
	"github.com/ramses-rf/gateway/internal/ramses/entities"
	"github.com/ramses-rf/gateway/internal/ramses/packet"
	"github.com/ramses-rf/gateway/internal/ramses/qos"
	"github.com/ramses-rf/gateway/internal/ramses/transport"
	bqsink "github.com/ramses-rf/gateway/internal/sink/bigquery"
)

var (
	// set when building the application
	app       string
	version   string
	branch    string
	revision  string
	buildDate string
	goVersion = runtime.Version()

	devicePath    = kingpin.Flag("device-path", "Path to the USB device connecting the HGI80/evofw3 dongle.").Default("/dev/ttyUSB0").OverrideDefaultFromEnvar("DEVICE_PATH").String()
	baudRate      = kingpin.Flag("baud-rate", "Serial baud rate.").Default("115200").OverrideDefaultFromEnvar("BAUD_RATE").Uint()
	gatewayID     = kingpin.Flag("gateway-id", "This gateway's own device id (rewrites the faked 18:000730 on send).").Envar("GATEWAY_ID").Required().String()
	packetLogPath = kingpin.Flag("packet-log-path", "Append every read/written wire line here, timestamped.").Envar("PACKET_LOG_PATH").String()

	disableSending   = kingpin.Flag("disable-sending", "Never write commands to the transport.").Envar("DISABLE_SENDING").Bool()
	disableDiscovery = kingpin.Flag("disable-discovery", "Never schedule periodic SCHEMA/PARAMS/STATUS queries.").Envar("DISABLE_DISCOVERY").Bool()
	enableEavesdrop  = kingpin.Flag("enable-eavesdrop", "Allow deductive role promotion/zone inference from observed traffic.").Envar("ENABLE_EAVESDROP").Bool()
	enforceKnownList = kingpin.Flag("enforce-known-list", "Drop all traffic to/from devices not in the include list.").Envar("ENFORCE_KNOWN_LIST").Bool()
	maxZones         = kingpin.Flag("max-zones", "Maximum zones per system.").Default("12").Envar("MAX_ZONES").Int()
	strictPackets    = kingpin.Flag("strict", "Raise InvalidPacket instead of logging it.").Envar("STRICT_PACKETS").Bool()
	debug            = kingpin.Flag("debug", "Log at debug level.").Envar("DEBUG").Bool()

	bigqueryEnable    = kingpin.Flag("bigquery-enable", "Stream entity snapshots to BigQuery.").Envar("BQ_ENABLE").Bool()
	bigqueryProjectID = kingpin.Flag("bigquery-project-id", "Google Cloud project id containing the BigQuery dataset.").Envar("BQ_PROJECT_ID").String()
	bigqueryDataset   = kingpin.Flag("bigquery-dataset", "Name of the BigQuery dataset.").Envar("BQ_DATASET").String()
	bigqueryTable     = kingpin.Flag("bigquery-table", "Name of the BigQuery table.").Envar("BQ_TABLE").String()
)

// portHandle lets the stale-port watchdog swap in a freshly reopened
// transport.PortTransport without the QoS engine's Writer reference going
// stale, the generalised form of the teacher's openSerialPort/
// closeSerialPort pair being re-run in place around a shared `f`/`in`.
type portHandle struct {
	mu   sync.Mutex
	port *transport.PortTransport
}

func (h *portHandle) WriteLine(line string) error {
	h.mu.Lock()
	p := h.port
	h.mu.Unlock()
	return p.WriteLine(line)
}

func (h *portHandle) swap(p *transport.PortTransport) *transport.PortTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.port
	h.port = p
	return old
}

func (h *portHandle) current() *transport.PortTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.port
}

func openPort(logger zerolog.Logger, pktlog *transport.PacketLogger) *transport.PortTransport {
	p, err := transport.NewPortTransport(logger, transport.PortConfig{
		PortName: *devicePath,
		BaudRate: *baudRate,
		Timeout:  100 * time.Millisecond,
	}, *gatewayID, pktlog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed opening serial port")
	}
	return p
}

func main() {
	kingpin.Parse()

	logger := gwylog.Init(*debug)

	log.Info().
		Str("branch", branch).
		Str("revision", revision).
		Str("buildDate", buildDate).
		Str("goVersion", goVersion).
		Msgf("Starting %v version %v...", app, version)

	cfg := config.New()
	cfg.DisableSending = *disableSending
	cfg.DisableDiscovery = *disableDiscovery
	cfg.EnableEavesdrop = *enableEavesdrop
	cfg.EnforceKnownList = *enforceKnownList
	cfg.MaxZones = *maxZones

	registry := entities.NewRegistry()
	router := dispatch.New(registry, cfg, logger, *strictPackets)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pktlog *transport.PacketLogger
	if *packetLogPath != "" {
		f, err := os.OpenFile(*packetLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal().Err(err).Msg("failed opening packet log")
		}
		defer f.Close()
		pktlog = transport.NewPacketLogger(f)
	}

	handle := &portHandle{port: openPort(logger, pktlog)}
	defer handle.current().Close()

	engine := qos.NewEngine(logger, handle, *gatewayID, cfg.DisableSending, func(id string) bool {
		if dev := registry.Device(id); dev != nil {
			return dev.HasBattery
		}
		return false
	})
	go engine.Run(100 * time.Millisecond)
	defer engine.Stop()

	scheduler := discovery.NewScheduler(engine, nil)
	if !cfg.DisableDiscovery {
		router.WithDiscovery(ctx, scheduler, *gatewayID)
	}

	gw := control.New(registry, cfg, engine, *gatewayID)
	for id, known := range cfg.IncludeList {
		if !known.Faked {
			continue
		}
		if _, err := gw.GetDevice(id); err != nil {
			logger.Warn().Str("device", id).Err(err).Msg("failed pre-creating faked include-list device")
		}
	}

	var sink bqsink.Client
	if *bigqueryEnable {
		var err error
		sink, err = bqsink.NewClient(context.Background(), *bigqueryProjectID, true)
		if err != nil {
			log.Fatal().Err(err).Msg("failed creating bigquery client")
		}
		if err := bqsink.InitTable(sink, *bigqueryDataset, *bigqueryTable); err != nil {
			log.Fatal().Err(err).Msg("failed initialising bigquery table")
		}
	}

	if !cfg.DisableDiscovery {
		scheduleGatewayHeartbeat(ctx, scheduler, *gatewayID)
	}

	if sink != nil {
		go runBigquerySnapshotLoop(ctx, logger, registry, sink, *bigqueryDataset, *bigqueryTable)
	}

	lastMsg := &lastMessageClock{at: time.Now()}
	go runStalePortWatchdog(ctx, logger, handle, lastMsg, pktlog)

	log.Info().Msgf("listening on %v for RAMSES-II traffic as gateway %v...", *devicePath, *gatewayID)

	onLine := func(line string, dtm time.Time) {
		lastMsg.touch(dtm)
		pkt, err := packet.Parse(line, dtm)
		if err != nil {
			logger.Debug().Str("line", line).Err(err).Msg("dropped unparseable line")
			return
		}

		msg, err := router.Process(pkt, dtm)
		if err != nil {
			logger.Info().Str("line", line).Err(err).Msg("dropped packet")
			return
		}
		if msg == nil {
			return
		}

		if pkt.Verb == catalog.I || pkt.Verb == catalog.RP {
			engine.HandleReply(command.ReplyHeader{
				Verb: pkt.Verb,
				Code: pkt.Code,
				Src:  pkt.Src,
				Dst:  pkt.Dst,
			}, pkt.Payload)
		}
	}
	onFlag := func(flag string) {
		logger.Debug().Str("flag", flag).Msg("evofw3 control line")
	}

	for {
		started := handle.current()
		if err := started.Start(onLine, onFlag); err != nil {
			logger.Error().Err(err).Msg("transport read loop terminated, reopening")
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		// Only reopen here if nothing else (the stale-port watchdog) already
		// swapped in a fresh port while this read loop was unwinding.
		if handle.current() == started {
			handle.swap(openPort(logger, pktlog))
		}
	}
}

// scheduleGatewayHeartbeat arms a single SCHEMA-tier self-check
// (device-info request) for the gateway's own id; per-entity discovery
// (zone/device SCHEMA/PARAMS/STATUS task construction) is driven by the
// Gateway as each entity is discovered, not hardcoded at startup.
func scheduleGatewayHeartbeat(ctx context.Context, scheduler *discovery.Scheduler, gatewayID string) {
	scheduler.Schedule(ctx, gatewayID, discovery.TaskDef{
		Tier: discovery.Schema,
		Build: func() []*command.Command {
			return []*command.Command{command.New(catalog.RQ, gatewayID, gatewayID, catalog.Code10E0, "00")}
		},
	}, 0)
}
