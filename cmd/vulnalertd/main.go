package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"vulnalert/config"
	"vulnalert/internal/condition"
	"vulnalert/internal/dispatch"
	"vulnalert/internal/escalate"
	inputredis "vulnalert/internal/input/redis"
	"vulnalert/internal/logger"
	"vulnalert/internal/mailer"
	"vulnalert/internal/metrics"
	"vulnalert/internal/render"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/store"
	"vulnalert/internal/transport"
	"vulnalert/pkg/models"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("vulnalert.yml"); err == nil {
		return "vulnalert.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "vulnalert.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "vulnalert.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.VulnAlert.DataDir == "" {
		cfg.VulnAlert.DataDir = "/var/lib/vulnalert"
	}

	if cfg.VulnAlert.Input.Redis.Addr == "" {
		cfg.VulnAlert.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.VulnAlert.Input.Redis.Key == "" {
		cfg.VulnAlert.Input.Redis.Key = "alert_events"
	}
	if cfg.VulnAlert.Input.Redis.BlockTimeout == 0 {
		cfg.VulnAlert.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.VulnAlert.Metrics.Listen == "" {
		cfg.VulnAlert.Metrics.Listen = ":9723"
	}

	if cfg.VulnAlert.Logging.Level == "" {
		cfg.VulnAlert.Logging.Level = "info"
	}
}

func buildStores(cfg *config.Config) (store.Stores, func(), error) {
	var memory *store.Memory
	var err error
	if cfg.VulnAlert.Store.ResourcesFile != "" {
		memory, err = store.LoadFixtures(cfg.VulnAlert.Store.ResourcesFile)
		if err != nil {
			return store.Stores{}, nil, err
		}
		logger.Infof("Resources loaded from: %s", cfg.VulnAlert.Store.ResourcesFile)
	} else {
		memory = store.NewMemory()
	}

	stores := memory.Stores(store.LogAudit{})
	closeFn := func() {}

	if cfg.VulnAlert.Store.Redis.Addr != "" {
		rs, err := store.NewRedisStore(store.RedisConfig{
			Addr:      cfg.VulnAlert.Store.Redis.Addr,
			Password:  cfg.VulnAlert.Store.Redis.Password,
			DB:        cfg.VulnAlert.Store.Redis.DB,
			KeyPrefix: cfg.VulnAlert.Store.Redis.KeyPrefix,
		})
		if err != nil {
			return store.Stores{}, nil, err
		}
		stores.Alerts = rs
		stores.Counter = rs
		closeFn = func() {
			if err := rs.Close(); err != nil {
				logger.Errorf("Error closing alert store: %v", err)
			}
		}
		logger.Infof("Alert store: redis (%s)", cfg.VulnAlert.Store.Redis.Addr)
	} else {
		logger.Infof("Alert store: memory")
	}

	return stores, closeFn, nil
}

func buildRegistry(cfg *config.Config, m *mailer.Mailer) *transport.Registry {
	caCert := ""
	if path := cfg.VulnAlert.Methods.TippingPointCACert; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warnf("TippingPoint CA certificate unreadable, continuing without: %v", err)
		} else {
			caCert = string(data)
		}
	}

	return transport.NewRegistry(
		transport.NewEmailHandler(m),
		transport.NewHTTPGetHandler(0),
		transport.NewSCPHandler(),
		transport.NewSendHandler(),
		transport.NewSMBHandler(),
		transport.NewSNMPHandler(),
		transport.NewSourcefireHandler(),
		transport.NewStartTaskHandler(cfg.VulnAlert.Methods.StartTaskClient),
		transport.NewSyslogHandler(),
		transport.NewTippingPointHandler(caCert),
		transport.NewVeriniceHandler(),
		transport.NewVfireHandler(),
	)
}

// resolveSandboxIDs turns the sandbox config into the uid/gid helper
// processes run under. A configured user name wins over numeric ids.
func resolveSandboxIDs(cfg config.SandboxConfig) (uint32, uint32, error) {
	if cfg.User == "" {
		return uint32(cfg.UID), uint32(cfg.GID), nil
	}
	u, err := user.Lookup(cfg.User)
	if err != nil {
		return 0, 0, fmt.Errorf("look up sandbox user %q: %w", cfg.User, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, fmt.Errorf("sandbox user %q: non-numeric uid %q", cfg.User, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return 0, 0, fmt.Errorf("sandbox user %q: non-numeric gid %q", cfg.User, u.Gid)
	}
	return uint32(uid), uint32(gid), nil
}

func run(args []string) {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.VulnAlert.Logging.Enabled, cfg.VulnAlert.Logging.Level, cfg.VulnAlert.Logging.File, cfg.VulnAlert.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("VulnAlert starting")
	logger.Infof("Config loaded from: %s", configPath)

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.VulnAlert.Input.Redis.Addr,
		Password:     cfg.VulnAlert.Input.Redis.Password,
		DB:           cfg.VulnAlert.Input.Redis.DB,
		Key:          cfg.VulnAlert.Input.Redis.Key,
		BlockTimeout: cfg.VulnAlert.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	stores, closeStores, err := buildStores(cfg)
	if err != nil {
		logger.Errorf("Failed to build stores: %v", err)
		log.Fatalf("Failed to build stores: %v", err)
	}
	defer closeStores()

	var runner sandbox.Runner = sandbox.PlainRunner{}
	if cfg.VulnAlert.Sandbox.Privileged {
		uid, gid, err := resolveSandboxIDs(cfg.VulnAlert.Sandbox)
		if err != nil {
			logger.Errorf("Failed to resolve sandbox user: %v", err)
			log.Fatalf("Failed to resolve sandbox user: %v", err)
		}
		runner = sandbox.CredentialRunner{UID: uid, GID: gid}
		logger.Infof("Sandbox: helpers run as uid=%d gid=%d", uid, gid)
	}
	sb := sandbox.New(cfg.VulnAlert.DataDir, runner)

	m := mailer.New(mailer.Config{
		Mode:              cfg.VulnAlert.Mail.Mode,
		SendmailPath:      cfg.VulnAlert.Mail.SendmailPath,
		SMTPHost:          cfg.VulnAlert.Mail.SMTP.Host,
		SMTPPort:          cfg.VulnAlert.Mail.SMTP.Port,
		SMTPUsername:      cfg.VulnAlert.Mail.SMTP.Username,
		SMTPPassword:      cfg.VulnAlert.Mail.SMTP.Password,
		SMTPStartTLS:      cfg.VulnAlert.Mail.SMTP.StartTLS,
		FromAddress:       cfg.VulnAlert.Mail.FromAddress,
		MaxAttachmentSize: cfg.VulnAlert.Mail.MaxAttachmentSize,
		MaxIncludeSize:    cfg.VulnAlert.Mail.MaxIncludeSize,
	})

	registry := buildRegistry(cfg, m)
	renderer := render.Plain{Tasks: stores.Tasks}
	evaluator := condition.New(stores.Tasks, stores.Filters, stores.Counter)
	escalator := escalate.New(stores, renderer, registry, sb)
	dispatcher := dispatch.New(stores, evaluator, escalator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.VulnAlert.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.VulnAlert.Metrics.Listen, Handler: mux}
		go func() {
			logger.Infof("Metrics listening on %s", cfg.VulnAlert.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Metrics server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	go consumeLoop(ctx, consumer, stores, dispatcher)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	if err := consumer.Close(); err != nil {
		logger.Errorf("Error closing consumer: %v", err)
	}

	logger.Infof("VulnAlert stopped")
}

func consumeLoop(ctx context.Context, consumer *inputredis.Consumer, stores store.Stores, dispatcher *dispatch.Dispatcher) {
	for {
		raw, err := consumer.Pop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Errorf("Queue read failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if raw == nil {
			continue
		}

		env, err := inputredis.Decode(raw)
		if err != nil {
			logger.Warnf("Dropping envelope: %v", err)
			continue
		}
		event, err := env.ToEvent()
		if err != nil {
			logger.Warnf("Dropping envelope: %v", err)
			continue
		}

		var task *models.Task
		if env.TaskID != "" {
			task, err = stores.Tasks.Task(env.TaskID)
			if err != nil {
				logger.Warnf("Dropping %s event: task %s: %v", event.Kind, env.TaskID, err)
				continue
			}
		}
		var report *models.Report
		if env.ReportID != "" {
			report, err = stores.Tasks.Report(env.ReportID)
			if err != nil {
				logger.Warnf("Event %s: report %s: %v", event.Kind, env.ReportID, err)
			}
		}

		dispatcher.Event(event, task, report)
	}
}

func main() {
	if len(os.Args) > 1 {
		run(os.Args[1:])
		return
	}
	run(nil)
}
