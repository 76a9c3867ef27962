package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "fieldsim/internal/adapter/actor"
	"fieldsim/internal/config"
	"fieldsim/internal/core/actor"
	"fieldsim/internal/core/domain"
	"fieldsim/internal/core/sim"
	"fieldsim/internal/server"
	"fieldsim/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)
	slog.Info("fieldsim", "version", versioninfo.Short())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// build the device fleet
	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("could not build device registry", zap.Error(err))
		return
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg,
			simulatorActorProvider(cfg, registry, logger),
			mqttActorProvider(cfg, logger),
			modbusActorProvider(cfg, registry, logger),
			logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => FIELDSIM_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("FIELDSIM_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("fieldsim")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	if cfg.MQTT.Enable {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	// an empty device table falls back to the default fleet
	if len(cfg.Devices) == 0 {
		cfg.Devices = config.DefaultDevices()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func buildRegistry(cfg *config.Config, logger *zap.Logger) (*sim.Registry, error) {
	registry := sim.NewRegistry(logger)
	for _, d := range cfg.Devices {
		devType, err := domain.ParseDeviceType(d.Type)
		if err != nil {
			return nil, err
		}
		if _, err := registry.Create(devType, d.Instance, d.Name, d.Address); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func simulatorActorProvider(cfg *config.Config, registry *sim.Registry, logger *zap.Logger) actor.SimulatorActorProvider {
	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = sim.RandomSeed()
	}
	policy := sim.TickPolicy{
		Jitter:      cfg.Sim.TickMode == "jitter",
		Interval:    time.Duration(cfg.Sim.TickIntervalMillis) * time.Millisecond,
		MinInterval: time.Duration(cfg.Sim.TickMinMillis) * time.Millisecond,
		MaxInterval: time.Duration(cfg.Sim.TickMaxMillis) * time.Millisecond,
	}
	return func(events *eventstream.EventStream) *actor.SimulatorActor {
		engine := sim.NewEngine(registry, policy, seed, events, logger)
		return actor.NewSimulatorActor(registry, engine, events, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(events *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, events, logger)
	}
}

func modbusActorProvider(cfg *config.Config, registry *sim.Registry, logger *zap.Logger) actor.ModbusActorProvider {
	return func() *adactor.ModbusServerActor {
		return adactor.NewModbusServerActor(cfg.Modbus, registry, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "fieldsim")
	viper.SetDefault("modbus.enable", false)
	viper.SetDefault("modbus.listen_url", "tcp://0.0.0.0:5502")
	viper.SetDefault("sim.tick_mode", "fixed")
	viper.SetDefault("sim.tick_interval_millis", 5000)
	viper.SetDefault("sim.tick_min_millis", 5000)
	viper.SetDefault("sim.tick_max_millis", 10000)
	viper.SetDefault("sim.seed", 0)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
