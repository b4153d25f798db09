// Command homebased is the robot-side daemon. It owns the serial link to the
// mobile base, tracks telemetry into the latest-state cache, runs the goto
// controller, listens for camera frames over UDP, samples teleop trials into
// the trial database, and serves the HTTP control API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/strandbotics/homebase/internal/api"
	"github.com/strandbotics/homebase/internal/baselink"
	"github.com/strandbotics/homebase/internal/camera"
	"github.com/strandbotics/homebase/internal/config"
	"github.com/strandbotics/homebase/internal/control"
	"github.com/strandbotics/homebase/internal/recorder"
	"github.com/strandbotics/homebase/internal/telemetry"
	"github.com/strandbotics/homebase/internal/trialstore"
	"github.com/strandbotics/homebase/internal/units"
	"github.com/strandbotics/homebase/internal/version"
)

var (
	devMode         = flag.Bool("dev", false, "Run with a simulated base instead of hardware")
	listen          = flag.String("listen", ":8080", "HTTP listen address")
	port            = flag.String("port", "/dev/ttyUSB0", "Serial port for the base controller (ignored in dev mode)")
	configPath      = flag.String("config", "", "Path to a robot config JSON file (defaults apply when empty)")
	dbPath          = flag.String("db-path", "trials.db", "Path to the SQLite trial database")
	trialsDir       = flag.String("trials-dir", "trials", "Directory for recorded trial images")
	displayUnits    = flag.String("units", units.MPS, "Display units for speeds (mps, mph, kmph)")
	cameraAddr      = flag.String("camera-addr", ":5005", "UDP listen address for camera frames (empty disables)")
	forwardAddr     = flag.String("forward-addr", "", "Address to forward telemetry state packets to (empty disables)")
	forwardPort     = flag.Int("forward-port", 5006, "Port to forward telemetry state packets to")
	robotName       = flag.String("robot", "homebase", "Robot name tag on forwarded telemetry packets")
	rcvBuf          = flag.Int("rcvbuf", 1<<20, "Camera UDP receive buffer size in bytes")
	logInterval     = flag.Int("log-interval", 60, "Camera statistics logging interval in seconds")
	applyMigrations = flag.Bool("migrations", false, "Apply pending schema migrations at startup")
	showVersion     = flag.Bool("version", false, "Print the build version and exit")
)

// prepareStore opens the trial database and enforces the schema guard: fresh
// databases get the full schema, databases behind the embedded migration set
// refuse to start unless migrations were requested.
func prepareStore(path string, migrate bool) (*trialstore.Store, error) {
	store, err := trialstore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trial database: %w", err)
	}

	fsys := trialstore.MigrationsFS()
	version, _, err := store.MigrateVersion(fsys)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == 0 || migrate {
		if err := store.MigrateUp(fsys); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to apply schema migrations: %w", err)
		}
		log.Printf("Trial database schema at %s is current", path)
		return store, nil
	}

	if shouldExit, err := store.CheckAndPromptMigrations(fsys); shouldExit {
		store.Close()
		return nil, err
	} else if err != nil {
		log.Printf("Migration check: %v", err)
	}
	return store, nil
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("homebased %s\n", version.String())
		return
	}

	// "homebased migrate <action>" manages the trial database schema and
	// exits without starting the daemon.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		trialstore.RunMigrateCommand(args[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !*devMode && *port == "" {
		log.Fatal("Serial port is required")
	}
	if !units.IsValid(*displayUnits) {
		log.Fatalf("Invalid units %q. Valid options: %s", *displayUnits, units.GetValidUnitsString())
	}

	robot := config.DefaultRobotConfig()
	if *configPath != "" {
		var err error
		robot, err = config.LoadRobotConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load robot config: %v", err)
		}
		log.Printf("Loaded robot config from %s", *configPath)
	}

	var base baselink.MuxInterface
	if *devMode {
		log.Print("Dev mode: driving a simulated base")
		base = baselink.NewMockMux()
	} else {
		var err error
		base, err = baselink.NewRealMux(*port, baselink.PortOptions{BaudRate: robot.GetSerialBaud()})
		if err != nil {
			log.Fatalf("failed to open base serial port: %v", err)
		}
	}
	defer base.Close()

	if err := base.Initialize(); err != nil {
		log.Fatalf("failed to initialize base controller: %v", err)
	}
	if hz := int(robot.GetTelemetryHz()); hz > 0 {
		if err := base.SetTelemetryRate(hz); err != nil {
			log.Printf("failed to set telemetry rate: %v", err)
		}
	}

	store, err := prepareStore(*dbPath, *applyMigrations)
	if err != nil {
		log.Fatalf("Trial database is not ready: %v", err)
	}
	defer store.Close()

	tracker := baselink.NewStateTracker()
	ctrl := control.NewController(control.ControllerConfig{
		Mux:     base,
		Tracker: tracker,
		Robot:   robot,
	})
	camCache := recorder.NewCameraCache()
	rec := recorder.NewRecorder(recorder.RecorderConfig{
		Store:   store,
		Tracker: tracker,
		Camera:  camCache,
		Dir:     *trialsDir,
		Robot:   robot,
	})

	// Create a wait group for the HTTP server, serial monitor, and the
	// control / recording routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := base.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial port messages and feed them to the state
	// tracker so the controller, recorder and API all see the same frame
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := base.Subscribe()
		defer base.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := baselink.HandleLine(tracker, payload); err != nil {
					log.Printf("error handling base event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// goto controller loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("goto controller error: %v", err)
		}
		log.Print("goto controller routine terminated")
	}()

	// trial recorder loop; samples only while a trial is open
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rec.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("trial recorder error: %v", err)
		}
		log.Print("recorder routine terminated")
	}()

	// camera frame listener
	if *cameraAddr != "" {
		camListener := camera.NewUDPListener(camera.UDPListenerConfig{
			Address:     *cameraAddr,
			RcvBuf:      *rcvBuf,
			LogInterval: time.Duration(*logInterval) * time.Second,
			Stats:       camera.NewPacketStats(),
			Handler:     camCache,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := camListener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("camera listener error: %v", err)
			}
			log.Print("camera listener routine terminated")
		}()
	}

	// telemetry relay to an off-robot viewer
	if *forwardAddr != "" {
		forwarder, err := telemetry.NewForwarder(*forwardAddr, *forwardPort, nil, 0)
		if err != nil {
			log.Fatalf("failed to create telemetry forwarder: %v", err)
		}
		forwarder.Start(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer forwarder.Close()
			if err := telemetry.Relay(ctx, base, *robotName, forwarder); err != nil && err != context.Canceled {
				log.Printf("telemetry relay error: %v", err)
			}
			log.Print("telemetry relay routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create the API server instance over the shared collaborators
		// and mount the API handlers
		mux := api.NewServer(api.ServerConfig{
			Mux:        base,
			Controller: ctrl,
			Tracker:    tracker,
			Store:      store,
			Recorder:   rec,
			Camera:     camCache,
			Robot:      robot,
			Units:      *displayUnits,
		}).ServeMux()

		base.AttachAdminRoutes(mux)
		store.AttachAdminRoutes(mux)

		// Health check endpoint
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status": "ok", "service": "homebased", "version": %q, "timestamp": "%s"}`,
				version.String(), time.Now().UTC().Format(time.RFC3339))
		})

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
