// trafficd runs the AI traffic and auto-moderation directors against a
// track spline, with an in-process packet sink standing in for the network
// layer. The real server embeds the same packages and supplies its own
// sink.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/apexsim/extension/internal/ai"
	"github.com/apexsim/extension/internal/audit"
	"github.com/apexsim/extension/internal/automod"
	"github.com/apexsim/extension/internal/config"
	"github.com/apexsim/extension/internal/dispatcher"
	"github.com/apexsim/extension/internal/entrycar"
	"github.com/apexsim/extension/internal/logging"
	"github.com/apexsim/extension/internal/scripts"
	"github.com/apexsim/extension/internal/session"
	"github.com/apexsim/extension/internal/spline"
	"github.com/apexsim/extension/internal/stream"
	"github.com/apexsim/extension/internal/telemetry"
	"github.com/apexsim/extension/pkg/core"
)

// ExtensionVersion can be set at build time via ldflags.
var ExtensionVersion = "0.0.1"

// logSink logs outbound packets. The harness has no real clients; the
// packet stream in the log is the observable output.
type logSink struct {
	logger *slog.Logger
}

func (s *logSink) SendPacket(sessionID uint8, p core.Packet) error {
	s.logger.Debug("packet sent", "sessionId", sessionID, "packet", p.PacketName())
	return nil
}

func (s *logSink) BroadcastPacket(p core.Packet) {
	s.logger.Debug("packet broadcast", "packet", p.PacketName())
}

func (s *logSink) Kick(client *entrycar.Client, reason string) error {
	s.logger.Info("client kicked", "client", client.Name, "reason", reason)
	return nil
}

// logScriptProvider records script registrations.
type logScriptProvider struct {
	logger *slog.Logger
}

func (p *logScriptProvider) AddScript(content []byte, name string) {
	p.logger.Info("client script registered", "name", name, "bytes", len(content))
}

func main() {
	configDir := flag.String("config", ".", "directory containing traffic_extension.cfg.json")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	if err := config.Load(configDir); err != nil {
		return err
	}

	sessionStart := time.Now()
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.Create(logging.LogFilePath(logsDir, "traffic_extension", sessionStart))
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()

	otelProvider, err := telemetry.New(telemetry.Config{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  "traffic-extension",
		BatchTimeout: 5 * time.Second,
		LogWriter:    logFile,
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	})
	if err != nil {
		return fmt.Errorf("setting up otel: %w", err)
	}
	defer otelProvider.Shutdown(context.Background())

	var gelfWriter io.Writer
	if viper.GetBool("graylog.enabled") {
		gw, err := logging.NewGelfWriter(viper.GetString("graylog.address"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "graylog disabled: %v\n", err)
		} else {
			gelfWriter = gw
		}
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(logFile, viper.GetString("logLevel"), otelProvider.LoggerProvider(), gelfWriter)
	logger := slogManager.Logger()
	logger.Info("Starting traffic extension", "version", ExtensionVersion)

	// the dispatcher and influx keep their zerolog plumbing
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	aiCfg := config.Ai()

	graph, trackInfo, err := spline.Load(viper.GetString("server.trackFile"), aiCfg.LaneWidthMeters)
	if err != nil {
		return fmt.Errorf("loading track spline: %w", err)
	}
	logger.Info("Track spline loaded", "track", trackInfo.Name, "points", graph.Len())

	events, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("creating event dispatcher: %w", err)
	}

	recorder := audit.NewRecorder(logger)
	if err := recorder.Connect(); err != nil {
		logger.Warn("audit disabled", "error", err)
	} else {
		lanes, err := graph.LaneLineStrings()
		if err != nil {
			return fmt.Errorf("exporting lane geometry: %w", err)
		}
		if err := recorder.StartTrack(trackInfo.Name, trackInfo.Location, lanes); err != nil {
			return fmt.Errorf("registering track: %w", err)
		}
		recorder.Start()
		defer recorder.Stop()
	}

	index := entrycar.NewSlowestStateIndex()
	cars := buildEntryList(&aiCfg)
	manager := entrycar.NewManager(cars, index, &logSink{logger: logger}, events, logger)

	sessions := session.NewManager()
	sessions.SetCurrentSession(&core.SessionState{
		Configuration: core.SessionConfiguration{Name: viper.GetString("server.sessionName")},
		Grid:          gridOf(cars),
		StartTimeMs:   sessions.ServerTimeMs(),
	})

	weather := session.NewWeatherManager()
	weather.SetTrackGrip(float32(viper.GetFloat64("weather.trackGrip")))
	weather.SetSunPosition(&core.SunPosition{AltitudeDeg: viper.GetFloat64("weather.sunAltitudeDeg")})

	var debugSink ai.DebugSink
	var debugServer *stream.Server
	if viper.GetBool("debugStream.enabled") {
		debugServer = stream.NewServer(viper.GetString("debugStream.listenAddress"), logger)
		debugServer.Start()
		defer debugServer.Stop()
		debugSink = debugServer
	}

	var perfSink ai.PerfSink
	influx := telemetry.NewInfluxManager(zlog, filepath.Join(logsDir, "influx_backup.gz"))
	if viper.GetBool("influx.enabled") {
		if err := influx.Connect(); err != nil {
			logger.Warn("influx metrics degraded", "error", err)
		}
		perfSink = influx
		defer influx.Close()
	}

	director, err := ai.New(ai.Dependencies{
		Config:    aiCfg,
		EntryCars: manager,
		Spline:    graph,
		Sessions:  sessions,
		Logger:    logger,
		Debug:     debugSink,
		Perf:      perfSink,
	}, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("creating traffic director: %w", err)
	}
	director.RegisterEventHandlers(events, func(e dispatcher.Event) {
		ce, ok := e.Payload.(entrycar.ClientEvent)
		if !ok || ce.Client == nil {
			return
		}
		recorder.RecordConnection(ce.SessionID, ce.Client.Name, ce.Client.Guid, e.Name)
	})
	director.AdjustOverbooking()

	scriptProvider := &logScriptProvider{logger: logger}
	if aiCfg.Debug {
		scripts.RegisterAiDebug(scriptProvider)
	}

	moderator, err := automod.New(automod.Dependencies{
		Config:          config.AutoMod(),
		LaneWidthMeters: aiCfg.LaneWidthMeters,
		EntryCars:       manager,
		Sessions:        sessions,
		Weather:         weather,
		Spline:          graph,
		Logger:          logger,
		Audit:           recorder,
	})
	if err != nil {
		if errors.Is(err, automod.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("creating auto moderation: %w", err)
	}
	scripts.RegisterAutoModeration(scriptProvider)

	if aiCfg.Enabled {
		director.Start()
		defer director.Stop()
	}
	moderator.Start()
	defer moderator.Stop()

	logger.Info("Directors running", "aiEnabled", aiCfg.Enabled, "slots", len(cars))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutting down")
	return nil
}

// buildEntryList creates the slot table: player slots first, then AI slots.
func buildEntryList(cfg *config.AiConfig) []*entrycar.EntryCar {
	playerSlots := viper.GetInt("server.playerSlots")
	aiSlots := viper.GetInt("server.aiSlots")

	cars := make([]*entrycar.EntryCar, 0, playerSlots+aiSlots)
	for i := 0; i < playerSlots; i++ {
		cars = append(cars, entrycar.NewEntryCar(uint8(len(cars)), "player", core.AiModeNone, cfg))
	}
	for i := 0; i < aiSlots; i++ {
		cars = append(cars, entrycar.NewEntryCar(uint8(len(cars)), "traffic", core.AiModeAuto, cfg))
	}
	return cars
}

func gridOf(cars []*entrycar.EntryCar) []uint8 {
	grid := make([]uint8, len(cars))
	for i, car := range cars {
		grid[i] = car.SessionID
	}
	return grid
}
