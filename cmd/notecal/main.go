package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"notecal/internal/config"
	"notecal/internal/gcal"
	appLog "notecal/internal/log"
	"notecal/internal/store"
	"notecal/internal/sync"
	"notecal/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	authURL    bool
	authCode   string
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("notecal starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The OAuth flows don't need the store or manager.
	if flags.authURL {
		oauthCfg := gcal.NewOAuthConfig(conf.ClientID, conf.ClientSecret)
		fmt.Println(gcal.AuthCodeURL(oauthCfg))
		return
	}
	if flags.authCode != "" {
		if err := exchangeAndPersist(ctx, flags.configPath, conf, flags.authCode); err != nil {
			appLog.Error("authorization failed", err)
			os.Exit(1)
		}
		appLog.Info("authorization complete; tokens saved", "config_path", flags.configPath)
		return
	}

	notes, err := store.Open(conf.NoteDir)
	if err != nil {
		appLog.Error("failed to open note store", err, "note_dir", conf.NoteDir)
		os.Exit(1)
	}

	manager := sync.NewManager(notes, flags.configPath)
	defer manager.Close()

	if err := manager.Configure(ctx, conf); err != nil {
		// Keep serving the status API so the host can see what is wrong.
		appLog.Error("sync configuration incomplete", err)
	}

	if flags.once {
		res, err := manager.Sync(ctx)
		if err != nil {
			appLog.Error("sync failed", err)
			os.Exit(1)
		}
		appLog.Info("sync complete", "pushed", res.Pushed, "pulled", res.Pulled, "conflicts", res.Conflicts)
		return
	}

	// Shut down cleanly on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := web.StartServer(ctx, conf, manager, notes); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("notecal exiting")
}

// exchangeAndPersist trades an authorization code for tokens and writes
// them into the config file.
func exchangeAndPersist(ctx context.Context, path string, conf *config.Config, code string) error {
	oauthCfg := gcal.NewOAuthConfig(conf.ClientID, conf.ClientSecret)
	tok, err := gcal.ExchangeAuthCode(ctx, oauthCfg, code)
	if err != nil {
		return err
	}
	conf.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		conf.RefreshToken = tok.RefreshToken
	}
	return config.Save(path, conf)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "notecal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one sync pass and exit")
	flag.BoolVar(&cfg.authURL, "auth-url", false, "Print the OAuth consent URL and exit")
	flag.StringVar(&cfg.authCode, "auth", "", "Authorization code from the consent flow")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
