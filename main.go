package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"InterviewPulse/internal/config"
	"InterviewPulse/internal/emotion"
	"InterviewPulse/internal/gateway"
	"InterviewPulse/internal/grpcserver"
	"InterviewPulse/internal/httpserver"
	"InterviewPulse/internal/logger"
	"InterviewPulse/internal/questionbank"
	"InterviewPulse/internal/session"
	"InterviewPulse/internal/store"
)

var (
	version    = "dev" // 构建时通过 ldflags 注入
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "interviewpulse",
	Short:         "Real-time interview practice server with emotion feedback",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket gateway, REST API and gRPC service",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./configs/interview.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe 组装所有组件并阻塞到收到退出信号
func runServe(cmd *cobra.Command, args []string) error {
	cm, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	cfg := cm.Config()
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	log := logger.WithModule("main")
	started := time.Now()
	log.WithFields(logrus.Fields{"version": version, "config": cm.ConfigFile()}).Info("InterviewPulse starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logs *logger.Broadcaster
	if cfg.Server.LogStream {
		logs = logger.NewBroadcaster(logrus.InfoLevel)
		logrus.AddHook(logs)
		go logs.Run()
		defer logs.Stop()
	}

	st, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN, Dir: cfg.Store.Dir})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bank := questionbank.Default()
	if cfg.Questions.File != "" {
		if bank, err = questionbank.LoadFile(cfg.Questions.File); err != nil {
			return fmt.Errorf("load question bank: %w", err)
		}
	}

	var classifier emotion.Classifier
	if cfg.Emotion.ClassifierURL != "" {
		classifier = emotion.NewHTTPClassifier(cfg.Emotion.ClassifierURL, cfg.Emotion.ClassifyTimeout)
	}
	probeCtx, cancelProbe := context.WithTimeout(ctx, cfg.Emotion.ProbeTimeout)
	classifier, capability := emotion.Detect(probeCtx, classifier)
	cancelProbe()
	processor := emotion.NewProcessor(classifier, capability, &emotion.ProcessorConfig{
		ClassifyTimeout: cfg.Emotion.ClassifyTimeout,
		MaxFrameBytes:   cfg.Emotion.MaxFrameBytes,
		MaxPixels:       cfg.Emotion.MaxPixels,
	})

	manager := session.NewManager(bank, st, cfg.Session, session.WithInsightPolicy(cfg.Insights))

	cm.OnChange(func(c *config.Config) {
		if err := logger.SetLevel(c.Log.Level); err != nil {
			log.WithError(err).Warn("ignoring invalid log level")
		}
		manager.SetInsightPolicy(c.Insights)
	})
	cm.Watch()

	gwConfig := gateway.DefaultConfig(cfg.Server.WSAddr)
	gwConfig.MaxConnections = cfg.Server.MaxConnections
	gwConfig.ReadTimeout = cfg.Server.ReadTimeout
	gwConfig.WriteTimeout = cfg.Server.WriteTimeout
	gwConfig.PingInterval = cfg.Server.PingInterval
	gwConfig.EnableCompression = cfg.Server.EnableCompression
	var gwOpts []gateway.Option
	if logs != nil {
		gwOpts = append(gwOpts, gateway.WithLogStream(logs))
	}
	gw := gateway.New(gwConfig, manager, processor, gwOpts...)

	api := httpserver.NewAPIServer(cfg.Server.HTTPAddr, manager, processor)
	interviewSrv := grpcserver.NewInterviewServer(manager)
	grpcSrv, health := grpcserver.NewGRPCServer(interviewSrv)
	api.AddStatsSource("grpc", interviewSrv.GetStats)
	if logs != nil {
		api.AddStatsSource("log_stream", func() map[string]interface{} {
			return map[string]interface{}{"subscribers": logs.ClientCount()}
		})
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		manager.Run(janitorCtx)
	}()

	if err := gw.Start(); err != nil {
		stopJanitor()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		health.Shutdown()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("gateway shutdown")
		}
		if err := api.Stop(shutdownCtx); err != nil {
			log.WithError(err).Warn("http api shutdown")
		}
		grpcSrv.GracefulStop()

		stopJanitor()
		select {
		case <-janitorDone:
		case <-shutdownCtx.Done():
			log.Warn("session flush did not finish before shutdown timeout")
		}
		return nil
	})

	log.WithFields(logrus.Fields{
		"ws":         cfg.Server.WSAddr,
		"http":       cfg.Server.HTTPAddr,
		"grpc":       cfg.Server.GRPCAddr,
		"store":      cfg.Store.Driver,
		"classifier": capability.String(),
	}).Info("InterviewPulse ready")

	err = g.Wait()
	log.WithField("uptime", time.Since(started).Round(time.Second)).Info("InterviewPulse stopped")
	return err
}
