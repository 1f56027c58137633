package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gazelaundry/internal/api"
	"gazelaundry/pkg/calibration"
	"gazelaundry/pkg/config"
	"gazelaundry/pkg/db"
	"gazelaundry/pkg/db/maintenance"
	"gazelaundry/pkg/dispatch"
	"gazelaundry/pkg/eyetracker"
	"gazelaundry/pkg/gaze"
	"gazelaundry/pkg/logging"
	"gazelaundry/pkg/probe"
	"gazelaundry/pkg/publish"
	"gazelaundry/pkg/stats"
	"gazelaundry/pkg/store"
	"gazelaundry/pkg/version"
)

const defaultConfigPath = "configs/gazelaundry.yaml"

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(defaultConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: " + defaultConfigPath)
		return
	}

	if err := run(context.Background(), defaultConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()
	logging.EnableTrace(appCfg.Sensor.Trace)

	slog.Info("GazeLaundry Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, dbConn, appCfg.DB.Retention.D()); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	dev, err := newSensor(&appCfg.Sensor)
	if err != nil {
		return fmt.Errorf("failed to initialize sensor: %w", err)
	}
	defer dev.Close()

	// Startup Probes
	var mqttClient mqtt.Client
	probes := []probe.Probe{
		probe.Database(dbConn),
		probe.Sensor(dev),
	}
	if appCfg.MQTT.Enabled {
		probes = append(probes, probe.Func("MQTT Broker", func(context.Context) error {
			c, err := publish.Connect(&appCfg.MQTT)
			if err != nil {
				return err
			}
			mqttClient = c
			return nil
		}))
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
	}

	tr := stats.New()
	stream := api.NewStreamHub(appCfg.Stream.BufferSize, tr)
	go stream.Run(ctx)
	calSocket := api.NewCalibrationSocket()

	var pub *publish.Publisher
	if mqttClient != nil {
		pub = publish.New(mqttClient, &appCfg.MQTT, publish.WithStats(tr))
		go pub.Run(ctx)
	}

	et, err := initEyeTracker(appCfg, dev, st, pub, calSocket, tr)
	if err != nil {
		// The tracker still serves the zero frame; calibration reports 503.
		slog.Error("Sensor not available", "error", err)
	}
	defer et.Close()

	et.Hub().AddListener(dispatch.ListenerFunc(func(s *gaze.Sample) {
		f := gaze.FromSample(s, et.Hub().Resolution())
		stream.Broadcast(f)
		if pub != nil {
			pub.PublishFrame(f)
		}
	}))

	seq := et.Calibration()
	seq.SetOnStart(func() { calSocket.SendState(true, nil) })
	seq.SetOnStop(func() {
		var last *calibration.Outcome
		if o, ok := seq.LastOutcome(); ok {
			last = &o
		}
		calSocket.SendState(false, last)
	})

	return runServer(ctx, appCfg, et, st, tr, stream, calSocket)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func initEyeTracker(cfg *config.Config, dev sensorDevice, st store.Store, pub *publish.Publisher, calSocket *api.CalibrationSocket, tr *stats.Tracker) (*eyetracker.EyeTracker, error) {
	recorders := []calibration.Recorder{st, calibration.RecorderFunc(logCalibration)}
	opts := []eyetracker.Option{
		eyetracker.WithWindow(cfg.Sensor.Window),
		eyetracker.WithStats(tr),
		eyetracker.WithShowFunc(calSocket.Show),
	}
	if pub != nil {
		recorders = append(recorders, pub)
		opts = append(opts, eyetracker.WithTrackingHook(pub.PublishTracking))
	}
	opts = append(opts, eyetracker.WithCalibration(
		calibration.WithSampleDuration(cfg.Calibration.SampleDuration.D()),
		calibration.WithMaxRetries(cfg.Calibration.MaxRetries),
		calibration.WithRecorder(calibration.Recorders(recorders...)),
	))
	return eyetracker.New(dev, opts...)
}

func logCalibration(_ context.Context, o calibration.Outcome) error {
	title := "Calibration finished"
	if !o.Completed {
		title = "Calibration aborted"
	}
	logging.LogEvent(&logging.Event{
		Timestamp: o.FinishedAt,
		Type:      "calibration",
		Title:     title,
		Summary:   fmt.Sprintf("%s (%.2f°, %d points, %d resampled)", o.Label, o.AverageError, o.Points, o.Resampled),
	})
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, et *eyetracker.EyeTracker, st store.Store, tr *stats.Tracker, stream *api.StreamHub, calSocket *api.CalibrationSocket) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	grid := func() []gaze.Point {
		return calibration.Grid(et.Hub().Resolution(), cfg.Calibration.Grid, cfg.Calibration.Margin)
	}

	srv := api.NewServer(cfg.Server.Address,
		api.NewFrameHandler(et),
		api.NewStatsHandler(tr, stream.Clients),
		api.NewCalibrationHandler(et.Calibration(), st, grid),
		stream,
		calSocket,
		api.NewMetricsHandler(tr, et, stream.Clients),
		shutdownFunc,
	)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
