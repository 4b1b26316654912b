package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"furnacebot.ai/internal/action"
	"furnacebot.ai/internal/catalog"
	"furnacebot.ai/internal/clock"
	"furnacebot.ai/internal/config"
	"furnacebot.ai/internal/crafter"
	"furnacebot.ai/internal/gamestate"
	"furnacebot.ai/internal/hostlink"
	"furnacebot.ai/internal/options"
	"furnacebot.ai/internal/persistence/index"
	"furnacebot.ai/internal/persistence/runlog"
	"furnacebot.ai/internal/transport/status"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to furnacebot.yaml (optional)")
		dataDir      = flag.String("data", "", "runtime data directory (overrides config)")
		hostURL      = flag.String("host", "", "host sidecar websocket url (overrides config)")
		gameStateURL = flag.String("game_state", "", "game state plugin url (overrides config)")
		statusListen = flag.String("status_listen", "", "status http listen address, \"off\" to disable (overrides config)")
		recipesPath  = flag.String("recipes", "", "extra recipes.json (overrides config)")
		craftItem    = flag.String("craft", "", "item to craft (overrides options.craft_item)")
		minutes      = flag.Int("minutes", 0, "running time in minutes (overrides options.running_time)")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite session index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[furnacebot] ", log.LstdFlags|log.Lmicroseconds)
	os.Exit(run(logger, flags{
		configPath: *configPath, dataDir: *dataDir, hostURL: *hostURL, gameStateURL: *gameStateURL,
		statusListen: *statusListen, recipes: *recipesPath, craftItem: *craftItem, minutes: *minutes, disableDB: *disableDB,
	}))
}

type flags struct {
	configPath   string
	dataDir      string
	hostURL      string
	gameStateURL string
	statusListen string
	recipes      string
	craftItem    string
	minutes      int
	disableDB    bool
}

// run wires the bot together and returns the process exit code.
func run(logger *log.Logger, f flags) int {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		logger.Printf("config: %v", err)
		return 2
	}
	applyFlags(&cfg, f)

	cat := catalog.Builtin()
	if cfg.Recipes != "" {
		cat, err = catalog.Load(cfg.Recipes)
		if err != nil {
			logger.Printf("recipes: %v", err)
			return 1
		}
	}

	sess := options.NewForm(cat, logger).Save(cfg.Options)
	if !sess.Ready {
		logger.Printf("options not set; fix the options block in the config")
		return 1
	}

	sessionID := time.Now().UTC().Format("20060102T150405Z")
	ctx, cancel := signalContext()
	defer cancel()

	link, err := hostlink.Dial(ctx, hostlink.Config{
		URL:    cfg.HostWSURL,
		Logger: log.New(os.Stdout, "[hostlink] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Printf("host: %v", err)
		return 1
	}
	defer link.Close()
	go func() {
		select {
		case <-link.Done():
			logger.Printf("host link closed; stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	evLog := runlog.NewEventLogger(cfg.DataDir, sessionID, logger)
	defer evLog.Close()

	var idx *index.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = index.OpenSQLite(filepath.Join(cfg.DataDir, "index.sqlite"))
		if err != nil {
			logger.Printf("index: %v", err)
			return 1
		}
		defer idx.Close()
		if err := idx.UpsertRecipes(ctx, cat); err != nil {
			logger.Printf("index recipes: %v", err)
		}
		row := index.SessionRow{ID: sessionID, StartedAt: time.Now(), Recipe: sess.Recipe.Item.Name, Minutes: sess.RunningTime}
		if err := idx.BeginSession(ctx, row); err != nil {
			logger.Printf("index session: %v", err)
		}
	}

	hub := status.NewHub(sessionID, sess.Recipe.Item.Name)
	stopStatus := startStatusServer(cfg.StatusListen, hub, idx, logger)
	defer stopStatus()

	host := &lifecycle{log: logger, hub: hub, link: link}
	journals := crafter.Journals{evLog, hub}
	if idx != nil {
		journals = append(journals, idx)
	}

	actions := action.New(action.Deps{
		Detector:  link,
		Images:    link,
		Pointer:   link,
		Camera:    link,
		Layout:    link.Layout(),
		Clock:     clock.Real{},
		Logger:    log.New(hostWriter{host: host}, "", 0),
		ImagesDir: cfg.ImagesDir,
	}, cfg.Timing.Actions())

	ctrl := crafter.New(crafter.Deps{
		Actions:   actions,
		GameState: gamestate.New(gamestate.Config{BaseURL: cfg.GameStateURL}),
		Host:      host,
		Clock:     clock.Real{},
		Journal:   journals,
	}, crafter.Config{
		SessionID:    sessionID,
		Session:      sess,
		ToolReserved: cfg.UseMould,
		PollInterval: cfg.Timing.PollInterval(),
		BankSettle:   cfg.Timing.BankSettle(),
		WithdrawWait: cfg.Timing.WithdrawWait(),
	})

	logger.Printf("session %s: crafting %s for %d minutes", sessionID, sess.Recipe.Item.Name, sess.RunningTime)
	sum, err := ctrl.Run(ctx)
	idx.EndSession(sum)
	logger.Printf("session %s ended: reason=%s iterations=%d batches=%d", sessionID, sum.Reason, sum.Iterations, sum.Batches)

	var fe *crafter.FatalError
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Printf("interrupted")
	case errors.As(err, &fe):
		logger.Printf("fatal: %v", fe)
		return 1
	default:
		logger.Printf("run: %v", err)
		return 1
	}
	return 0
}

func applyFlags(cfg *config.Config, f flags) {
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.hostURL != "" {
		cfg.HostWSURL = f.hostURL
	}
	if f.gameStateURL != "" {
		cfg.GameStateURL = f.gameStateURL
	}
	if f.statusListen != "" {
		cfg.StatusListen = f.statusListen
	}
	if f.recipes != "" {
		cfg.Recipes = f.recipes
	}
	if cfg.Options == nil {
		cfg.Options = map[string]any{}
	}
	if f.craftItem != "" {
		cfg.Options[options.KeyCraftItem] = f.craftItem
	}
	if f.minutes != 0 {
		cfg.Options[options.KeyRunningTime] = f.minutes
	}
	if f.disableDB {
		cfg.DisableDB = true
	}
}

func startStatusServer(addr string, hub *status.Hub, idx *index.SQLiteIndex, logger *log.Logger) func() {
	if addr == "" || addr == "off" {
		return func() {}
	}
	var (
		sessions status.SessionLister
		stats    func() index.Stats
	)
	if idx != nil {
		sessions, stats = idx, idx.Stats
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           status.NewServer(hub, sessions, stats, log.New(os.Stdout, "[status] ", log.LstdFlags|log.Lmicroseconds)).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("status listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("status server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
