package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"fanplay/src/handler/tty"
	"fanplay/src/handler/web"
	"fanplay/src/jukebox"
	"fanplay/src/playback"
	"fanplay/src/player"
	"fanplay/src/player/mpd"
	"fanplay/src/player/speaker"
	"fanplay/src/remote"
	"fanplay/src/storage"
	"fanplay/src/util"
)

const confFile = "config.yaml"

var (
	build       = "%BUILD%"
	version     = "%VERSION%"
	versionDate = "%VERSION_DATE%"
)

type config struct {
	Address string `yaml:"bind"`
	URLRoot string `yaml:"url_root"`

	StorageDir string `yaml:"storage_dir"`
	Storage    string `yaml:"storage"`

	API struct {
		BaseURL string        `yaml:"base_url"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`
		Likes   *bool         `yaml:"likes"`
	} `yaml:"api"`

	Element struct {
		Type string `yaml:"type"`
		MPD  struct {
			Network  string  `yaml:"network"`
			Address  string  `yaml:"address"`
			Password *string `yaml:"password"`
		} `yaml:"mpd"`
	} `yaml:"element"`

	Player struct {
		HistorySize       int           `yaml:"history_size"`
		PreviousThreshold time.Duration `yaml:"previous_threshold"`
		StreamThreshold   time.Duration `yaml:"stream_threshold"`
		Accounting        string        `yaml:"accounting"`
	} `yaml:"player"`

	Keyboard bool `yaml:"keyboard"`
}

func (conf *config) Validate() (errs []error) {
	if conf.Address == "" {
		errs = append(errs, fmt.Errorf("config: `bind` is required"))
	}
	if conf.URLRoot == "" {
		errs = append(errs, fmt.Errorf("config: `url_root` is required"))
	}
	if conf.StorageDir == "" {
		errs = append(errs, fmt.Errorf("config: `storage_dir` is required"))
	}
	switch conf.Storage {
	case "", "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("config: unknown `storage` %q, expected file or sqlite", conf.Storage))
	}
	if conf.API.BaseURL == "" {
		errs = append(errs, fmt.Errorf("config: `api.base_url` is required"))
	}
	switch conf.Element.Type {
	case "mpd":
		if conf.Element.MPD.Address == "" {
			errs = append(errs, fmt.Errorf("config: `element.mpd.address` is required"))
		}
	case "speaker":
		if !speaker.Available {
			errs = append(errs, fmt.Errorf("config: the speaker element is not available in this build"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown `element.type` %q, expected mpd or speaker", conf.Element.Type))
	}
	if conf.Player.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("config: `player.history_size` must not be negative"))
	}
	if conf.Player.PreviousThreshold < 0 || conf.Player.StreamThreshold < 0 {
		errs = append(errs, fmt.Errorf("config: player thresholds must not be negative"))
	}
	if _, err := playback.ParseAccountingPolicy(conf.Player.Accounting); err != nil {
		errs = append(errs, fmt.Errorf("config: %v", err))
	}
	return
}

func (conf *config) jukeboxOptions() jukebox.Options {
	// Validate has already checked the policy.
	policy, _ := playback.ParseAccountingPolicy(conf.Player.Accounting)
	return jukebox.Options{
		Player: player.Options{
			HistorySize:       conf.Player.HistorySize,
			PreviousThreshold: conf.Player.PreviousThreshold,
		},
		Accounting: playback.AccountingOptions{
			Threshold: conf.Player.StreamThreshold,
			Policy:    policy,
		},
	}
}

func LoadConfig(filename string) (*config, error) {
	fd, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	d := yaml.NewDecoder(fd)
	d.KnownFields(true)
	var conf config
	if err := d.Decode(&conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

func main() {
	defaultLogLevel := "warn"
	if build == "debug" {
		defaultLogLevel = "debug"
	}

	configFile := flag.String("conf", confFile, "Path to the configuration file")
	printVersion := flag.Bool("version", false, "Print version information and exit")
	logLevel := flag.String("log", defaultLogLevel, "Sets the log level. [debug, info, warn, error]")
	flag.Parse()

	if ll, err := log.ParseLevel(*logLevel); err != nil {
		log.Fatalf("Could not parse log level: %v", err)
	} else {
		log.SetLevel(ll)
	}
	log.SetReportCaller(true)

	if *printVersion {
		fmt.Printf("Version: %v (%v)\n", version, versionDate)
		fmt.Printf("Build: %v\n", build)
		return
	}

	log.Infof("Version: %v (%v)\n", version, build)
	config, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		log.Fatalf("Could not load config: %v", errs)
	}

	storeDir := strings.Replace(config.StorageDir, "~", os.Getenv("HOME"), 1)
	if err := os.MkdirAll(storeDir, 0755); err != nil {
		log.Fatalf("Unable to create storage dir: %v", err)
	}
	log.Infof("Using %q for storage", storeDir)
	kv, err := openStorage(config.Storage, storeDir)
	if err != nil {
		log.Fatalf("Unable to open storage: %v", err)
	}
	defer kv.Close()

	client, err := remote.NewClient(remote.Options{
		BaseURL: config.API.BaseURL,
		Token:   config.API.Token,
		Timeout: config.API.Timeout,
	})
	if err != nil {
		log.Fatalf("Unable to set up the marketplace client: %v", err)
	}
	var likes jukebox.LikeService
	if config.API.Likes == nil || *config.API.Likes {
		likes = client
	}

	element, err := connectElement(config)
	if err != nil {
		log.Fatal(err)
	}

	jb := jukebox.New(kv, element, client, client, likes, config.jukeboxOptions())
	defer func() {
		if err := jb.Close(); err != nil {
			log.Errorf("Error closing the player: %v", err)
		}
	}()

	service, err := web.New(version, config.URLRoot, build == "debug", jb)
	if err != nil {
		log.Fatal(err)
	}
	if build == "debug" {
		service.Get("/debug/pprof/*", pprof.Index)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.Keyboard {
		go func() {
			err := tty.Run(ctx, os.Stdin, jb.Controller())
			if errors.Is(err, tty.ErrQuit) {
				stop()
			} else if err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("Keyboard control stopped: %v", err)
			}
		}()
	}

	if fullURL, err := util.FullURLRoot(config.URLRoot, config.Address); err != nil {
		log.Warn(err)
	} else {
		log.Infof("Mini-player available at %s", fullURL)
	}

	log.Infof("Now accepting HTTP connections on %v", config.Address)
	// No write timeout, event streams are long-lived.
	server := &http.Server{
		Addr:           config.Address,
		Handler:        service,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		BaseContext:    func(net.Listener) context.Context { return ctx },
	}
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Error shutting down webserver: %v", err)
		}
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Error running webserver: %v", err)
	}
	<-shutdown
}

func openStorage(kind, dir string) (storage.KV, error) {
	if kind == "sqlite" {
		return storage.OpenSQLite(dir)
	}
	return storage.OpenFile(dir)
}

func connectElement(config *config) (player.Element, error) {
	switch config.Element.Type {
	case "mpd":
		mpdConf := config.Element.MPD
		network := mpdConf.Network
		if network == "" {
			network = "tcp"
		}
		el, err := mpd.Connect(network, mpdConf.Address, mpdConf.Password)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to MPD: %v", err)
		}
		return el, nil
	case "speaker":
		el, err := speaker.New(nil)
		if err != nil {
			return nil, fmt.Errorf("unable to open the speaker: %v", err)
		}
		return el, nil
	default:
		return nil, fmt.Errorf("unknown element type: %q", config.Element.Type)
	}
}
