package main

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/stuffbin"
	"github.com/moodmuffin/strangerchat/internal/hub"
	"github.com/moodmuffin/strangerchat/internal/ledger"
	"github.com/moodmuffin/strangerchat/internal/moderation"
	"github.com/moodmuffin/strangerchat/store"
	"github.com/moodmuffin/strangerchat/store/fs"
	"github.com/moodmuffin/strangerchat/store/mem"
	"github.com/moodmuffin/strangerchat/store/redis"
	"github.com/nats-io/nats.go"
	flag "github.com/spf13/pflag"
)

var (
	logger = log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)
	ko     = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

// App is the global app context that's passed around.
type App struct {
	hub    *hub.Hub
	cfg    *hub.Config
	store  store.Store
	tpl    *template.Template
	fs     stuffbin.FileSystem
	logger *log.Logger
}

// eventsConfig represents the room event bus config.
type eventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

func loadConfig() {
	// Register --help handler.
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.StringSlice("config", []string{"config.toml"},
		"Path to one or more TOML config files to load in order")
	f.String("app.address", "", "Address to listen on (overrides config)")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	// Display version.
	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	// Read the config files.
	cFiles, _ := f.GetStringSlice("config")
	for _, f := range cFiles {
		log.Printf("reading config: %s", f)
		if err := ko.Load(file.Provider(f), toml.Parser()); err != nil {
			log.Printf("error reading config: %v", err)
		}
	}

	// Merge env flags into config.
	if err := ko.Load(env.Provider("STRANGERCHAT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "STRANGERCHAT_")), "__", ".", -1)
	}), nil); err != nil {
		log.Printf("error loading env config: %v", err)
	}

	// Merge command line flags into config.
	ko.Load(posflag.Provider(f, ".", ko), nil)
}

// initFS initializes the stuffbin embedded static filesystem.
func initFS() stuffbin.FileSystem {
	// Get self executable path to initialise stuffed FS.
	exe, err := os.Executable()
	if err != nil {
		log.Fatalf("error getting executable path: %v", err)
	}

	// Read stuffed data from self.
	fs, err := stuffbin.UnStuff(exe)
	if err != nil {
		// Binary is unstuffed or is running in dev mode.
		if err == stuffbin.ErrNoID {
			fs, err = stuffbin.NewLocalFS("./", "./theme")
			if err != nil {
				log.Fatalf("error falling back to local filesystem: %v", err)
			}
		} else {
			log.Fatalf("error reading stuffed binary: %v", err)
		}
	}
	return fs
}

// initStore initializes the room ledger store picked by store.type.
func initStore() (store.Store, func()) {
	switch typ := ko.String("store.type"); typ {
	case "redis":
		var cfg redis.Config
		if err := ko.Unmarshal("store.redis", &cfg); err != nil {
			logger.Fatalf("error unmarshalling 'store.redis' config: %v", err)
		}
		s, err := redis.New(cfg)
		if err != nil {
			logger.Fatalf("error initializing redis store: %v", err)
		}
		return s, func() { s.Close() }

	case "fs":
		var cfg fs.Config
		if err := ko.Unmarshal("store.fs", &cfg); err != nil {
			logger.Fatalf("error unmarshalling 'store.fs' config: %v", err)
		}
		s, err := fs.New(cfg, logger)
		if err != nil {
			logger.Fatalf("error initializing file store: %v", err)
		}
		return s, s.Close

	case "mem", "":
		return mem.New(), func() {}

	default:
		logger.Fatalf("unknown store type '%s'", typ)
	}
	return nil, nil
}

// initEvents connects to the NATS server room events are published to.
// It returns a nil Publisher if events are disabled.
func initEvents(cfg eventsConfig, name string) (ledger.Publisher, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("disconnected from NATS: %v", err)
			}
		}))
	if err != nil {
		logger.Fatalf("error connecting to NATS: %v", err)
	}
	logger.Printf("publishing room events to %s.*", cfg.Subject)

	return nc, func() {
		if err := nc.Drain(); err != nil {
			logger.Printf("error draining NATS connection: %v", err)
		}
	}
}

// initHTTPRoutes registers the HTTP routes.
func initHTTPRoutes(app *App) http.Handler {
	r := chi.NewRouter()
	r.Get("/", wrap(handleIndex, app))
	r.Get("/ws", wrap(handleWS, app))

	// API.
	r.Get("/api/health", wrap(handleHealth, app))
	r.Get("/api/stats", wrap(handleStats, app))
	r.Get("/api/rooms/{roomID}", wrap(handleGetRoom, app))

	// Static files.
	if app.fs != nil {
		r.Get("/theme/*", func(w http.ResponseWriter, r *http.Request) {
			app.fs.FileServer().ServeHTTP(w, r)
		})
	}
	return r
}

func main() {
	// Load configuration from files.
	loadConfig()

	// Initialize global app context.
	app := &App{
		logger: logger,
		fs:     initFS(),
	}
	if err := ko.Unmarshal("app", &app.cfg); err != nil {
		logger.Fatalf("error unmarshalling 'app' config: %v", err)
	}
	if app.cfg.WSTimeout < 3*time.Second {
		logger.Fatal("app.websocket_timeout should be >= 3s")
	}
	if app.cfg.RoomRecordAge < time.Second {
		logger.Fatal("app.room_record_age should be >= 1s")
	}

	// Initialize the store.
	st, closeStore := initStore()
	app.store = st

	// Room events.
	var evCfg eventsConfig
	if err := ko.Unmarshal("events", &evCfg); err != nil {
		logger.Fatalf("error unmarshalling 'events' config: %v", err)
	}
	pub, closeEvents := initEvents(evCfg, app.cfg.Name)
	lg := ledger.New(ledger.Config{
		RecordAge: app.cfg.RoomRecordAge,
		Subject:   evCfg.Subject,
	}, st, pub, logger)

	// Message moderation.
	var modCfg moderation.Config
	if err := ko.Unmarshal("moderation", &modCfg); err != nil {
		logger.Fatalf("error unmarshalling 'moderation' config: %v", err)
	}
	var filter hub.Filter
	if modCfg.Enabled {
		filter = moderation.New(modCfg)
	}

	app.hub = hub.NewHub(app.cfg, lg, filter, logger)
	go app.hub.Run()

	// Compile static templates.
	tpl, err := stuffbin.ParseTemplatesGlob(nil, app.fs, "/theme/templates/*.html")
	if err != nil {
		logger.Fatalf("error compiling templates: %v", err)
	}
	app.tpl = tpl

	// Start the app.
	handler := initHTTPRoutes(app)
	srv := &http.Server{
		Addr:    app.cfg.Address,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Expose the app as an onion service.
	var torCfg torConfig
	if err := ko.Unmarshal("tor", &torCfg); err != nil {
		logger.Fatalf("error unmarshalling 'tor' config: %v", err)
	}
	if torCfg.Enabled {
		go func() {
			if err := serveTor(ctx, torCfg, st, handler); err != nil {
				logger.Printf("error serving onion service: %v", err)
			}
		}()
	}

	go func() {
		logger.Printf("starting server on %v", app.cfg.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("couldn't start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	sCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sCtx); err != nil {
		logger.Printf("error shutting down server: %v", err)
	}

	// Hub first so that rooms closed on shutdown reach the ledger.
	app.hub.Stop()
	lg.Close()
	closeEvents()
	closeStore()
}
