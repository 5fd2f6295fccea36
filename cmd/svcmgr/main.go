// Package main is the entry point for the svcmgr command.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"svcmgr/internal/config"
	"svcmgr/internal/logger"
	"svcmgr/internal/platform"
	"svcmgr/internal/service"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: svcmgr [flags] <command> [label]

Commands:
  install <label>    Install the service defined in the config file
  uninstall <label>  Remove an installed service
  start <label>      Start a service
  stop <label>       Stop a service
  status <label>     Print the service status
  apply              Install every service defined in the config file
  watch              Apply the config file and re-apply it on change
  detect             Print the manager selected for this platform

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath  = flag.String("config", "conf/svcmgr.json", "Path to the configuration file")
		managerKind = flag.String("manager", "", "Manager kind (systemd, launchd, openrc, rcd, sc, scm, winsw); empty selects the platform native manager")
		level       = flag.String("level", "", "Service level: system or user")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("svcmgr %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	// A missing config file is fine for lifecycle verbs; install, apply
	// and watch need the service definitions and fail later when there
	// are none.
	cfg := config.DefaultConfig()
	loaded, err := config.Load(*configPath)
	switch {
	case err == nil:
		cfg = loaded
	case !errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *managerKind != "" {
		cfg.Manager = *managerKind
	}
	if *level != "" {
		cfg.Level = *level
	}

	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.WithComponent("main")
	log.Debug().
		Str("version", version).
		Str("config", *configPath).
		Str("command", args[0]).
		Msg("Starting svcmgr")

	if err := run(cfg, *configPath, args); err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "svcmgr: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, args []string) error {
	command := args[0]

	mgr, err := newManager(cfg)
	if err != nil {
		return err
	}

	switch command {
	case "install":
		label, err := commandLabel(args)
		if err != nil {
			return err
		}
		return installOne(mgr, cfg, label)

	case "uninstall":
		label, err := commandLabel(args)
		if err != nil {
			return err
		}
		return mgr.Uninstall(label)

	case "start":
		label, err := commandLabel(args)
		if err != nil {
			return err
		}
		return mgr.Start(label)

	case "stop":
		label, err := commandLabel(args)
		if err != nil {
			return err
		}
		return mgr.Stop(label)

	case "status":
		label, err := commandLabel(args)
		if err != nil {
			return err
		}
		return printStatus(mgr, label)

	case "apply":
		return apply(mgr, cfg)

	case "watch":
		return watch(mgr, cfg, configPath)

	case "detect":
		return printDetect(mgr)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// newManager builds the manager chosen by config or flags and applies the
// configured level.
func newManager(cfg *config.Config) (service.Manager, error) {
	pcfg := platform.Config{
		Systemd: platform.SystemdConfig{
			Restart: cfg.Adapters.Systemd.Restart,
			DirPath: cfg.Adapters.Systemd.DirPath,
		},
		Launchd: platform.LaunchdConfig{DirPath: cfg.Adapters.Launchd.DirPath},
		OpenRC:  platform.OpenRCConfig{DirPath: cfg.Adapters.OpenRC.DirPath},
		Rcd:     platform.RcdConfig{DirPath: cfg.Adapters.Rcd.DirPath},
		Sc: platform.ScConfig{
			ServiceType:  cfg.Adapters.Sc.ServiceType,
			StartType:    cfg.Adapters.Sc.StartType,
			ErrorControl: cfg.Adapters.Sc.ErrorControl,
		},
		WinSw: platform.WinSwConfig{
			ExePath: cfg.Adapters.WinSw.ExePath,
			DirPath: cfg.Adapters.WinSw.DirPath,
		},
	}

	var mgr service.Manager
	var err error
	if cfg.Manager != "" {
		kind, kerr := service.ParseKind(cfg.Manager)
		if kerr != nil {
			return nil, kerr
		}
		mgr, err = platform.NewWithConfig(kind, pcfg)
	} else {
		mgr, err = platform.Detect(pcfg)
	}
	if err != nil {
		return nil, err
	}

	lvl, err := cfg.ParseLevel()
	if err != nil {
		return nil, err
	}
	if lvl != mgr.Level() {
		if err := mgr.SetLevel(lvl); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}

func commandLabel(args []string) (service.Label, error) {
	if len(args) < 2 {
		return service.Label{}, fmt.Errorf("%s requires a service label", args[0])
	}
	return service.ParseLabel(args[1])
}

// installOne installs the config entry matching label.
func installOne(mgr service.Manager, cfg *config.Config, label service.Label) error {
	reqs, err := cfg.Requests()
	if err != nil {
		return err
	}
	for _, req := range reqs {
		if req.Label == label {
			return mgr.Install(req)
		}
	}
	return fmt.Errorf("service %s not defined in configuration: %w", label, service.ErrNotFound)
}

// apply installs every defined service. Failures are collected so one bad
// definition does not block the rest.
func apply(mgr service.Manager, cfg *config.Config) error {
	reqs, err := cfg.Requests()
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return errors.New("no services defined in configuration")
	}

	log := logger.WithComponent("apply")
	var failed int
	for _, req := range reqs {
		if err := mgr.Install(req); err != nil {
			log.Error().Err(err).Str("service", req.Label.String()).Msg("Install failed")
			failed++
			continue
		}
		log.Info().Str("service", req.Label.String()).Msg("Service installed")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d services failed to install", failed, len(reqs))
	}
	return nil
}

// watch applies the configuration, then re-applies it whenever the file
// changes, until interrupted.
func watch(mgr service.Manager, cfg *config.Config, configPath string) error {
	log := logger.WithComponent("watch")

	if err := apply(mgr, cfg); err != nil {
		log.Error().Err(err).Msg("Initial apply failed")
	}

	fw, err := config.NewWatcher(configPath, func(next *config.Config) {
		nextMgr, err := newManager(next)
		if err != nil {
			log.Error().Err(err).Msg("Manager selection failed after reload")
			return
		}
		if err := apply(nextMgr, next); err != nil {
			log.Error().Err(err).Msg("Re-apply failed")
		}
	})
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		return err
	}
	defer fw.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	return nil
}

func printStatus(mgr service.Manager, label service.Label) error {
	status, err := mgr.Status(label)
	if err != nil {
		return err
	}
	fmt.Println(status)

	if detail, err := statusDetail(label); err == nil && detail != "" {
		fmt.Println(detail)
	}
	return nil
}

func printDetect(mgr service.Manager) error {
	available, err := mgr.Available()
	if err != nil {
		return err
	}
	fmt.Printf("%T (level %s, available %t)\n", mgr, mgr.Level(), available)
	return nil
}
