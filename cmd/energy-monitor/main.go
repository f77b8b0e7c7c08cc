// Energy Monitor
// Main entry point for the energy monitor reporting services
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gridwatch/energy-monitor/internal/asynchttp"
	"github.com/gridwatch/energy-monitor/internal/datalog"
	"github.com/gridwatch/energy-monitor/internal/ingest"
	"github.com/gridwatch/energy-monitor/internal/logging"
	"github.com/gridwatch/energy-monitor/internal/netstat"
	"github.com/gridwatch/energy-monitor/internal/pvoutput"
	"github.com/gridwatch/energy-monitor/internal/scheduler"
	"github.com/gridwatch/energy-monitor/internal/statusapi"
)

// Config represents the configuration file structure
type Config struct {
	Datalog struct {
		Path string `yaml:"path"`
	} `yaml:"datalog"`

	Ingest struct {
		EventURL string `yaml:"event_url"`
	} `yaml:"ingest"`

	StatusAPI struct {
		Listen string `yaml:"listen"`
	} `yaml:"status_api"`

	Time struct {
		LocalOffsetHours int `yaml:"local_offset_hours"`
	} `yaml:"time"`

	Channels []pvoutput.InputChannel `yaml:"channels"`

	PVOutput *pvoutput.Config `yaml:"pvoutput"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "energy-monitor",
		Short: "Energy Monitor",
		Long:  "Energy monitor reporting services. Ingests sampled records and uploads generation statistics to PVOutput.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the monitor services",
		RunE:  runMonitor,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Energy Monitor v0.2.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/energy-monitor/monitor.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Dir); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if cfg.Datalog.Path == "" {
		return fmt.Errorf("datalog.path is required")
	}

	store, err := datalog.Open(cfg.Datalog.Path)
	if err != nil {
		return fmt.Errorf("failed to open datalog: %w", err)
	}
	defer store.Close()

	ingestCfg := ingest.DefaultConfig()
	if cfg.Ingest.EventURL != "" {
		ingestCfg.EventURL = cfg.Ingest.EventURL
	}
	bridge := ingest.New(ingestCfg, store)
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("failed to start ingest bridge: %w", err)
	}
	defer bridge.Stop()

	queue := scheduler.New()
	slots := asynchttp.NewSlotManager(2, &netstat.Checker{})

	uploader := pvoutput.New(pvoutput.Deps{
		Log:      datalog.NewReader(store),
		Slots:    slots,
		Channels: cfg.Channels,
		Zone:     pvoutput.Zone{OffsetHours: cfg.Time.LocalOffsetHours},
	})
	uploader.Attach(queue)

	if cfg.PVOutput != nil {
		if err := uploader.SetConfig(*cfg.PVOutput); err != nil {
			log.Errorf("pvoutput config rejected: %v", err)
		}
	}

	var api *statusapi.Server
	if cfg.StatusAPI.Listen != "" {
		api = statusapi.New(cfg.StatusAPI.Listen, uploader, uploader)
		api.Start()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(done)
	}()

	log.Infof("energy-monitor: started")
	sig := <-sigChan
	log.Infof("energy-monitor: received signal %v, shutting down", sig)

	uploader.Stop()
	cancel()
	<-done

	if api != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := api.Stop(shutdownCtx); err != nil {
			log.Errorf("statusapi shutdown: %v", err)
		}
	}

	log.Infof("energy-monitor: shutdown complete")
	return nil
}
