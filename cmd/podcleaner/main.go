// Command podcleaner wires every worker of the ad-removal pipeline
// together and exposes them through two urfave/cli/v2 subcommands:
// "process" for a single-shot CLI run and "service" for running one or
// all workers long-lived, optionally behind the HTTP front-end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"podcleaner/internal/addetector"
	"podcleaner/internal/audioeditor"
	"podcleaner/internal/blobstore"
	"podcleaner/internal/bus"
	"podcleaner/internal/config"
	"podcleaner/internal/downloader"
	"podcleaner/internal/httpapi"
	"podcleaner/internal/logger"
	"podcleaner/internal/rendezvous"
	"podcleaner/internal/transcriber"
)

func main() {
	app := &cli.App{
		Name:  "podcleaner",
		Usage: "download, transcribe, and strip advertisements from a podcast episode",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config.yaml", Usage: "path to the YAML config file"},
			&cli.BoolFlag{Name: "debug", Usage: "write intermediate transcripts/classifications to the debug output directory"},
		},
		Commands: []*cli.Command{
			processCommand,
			serviceCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("podcleaner_failed", "error", err)
		os.Exit(1)
	}
}

// buildBus constructs the MessageBus backend named by cfg.MessageBroker.Type.
func buildBus(cfg *config.Config) (bus.MessageBus, error) {
	switch cfg.MessageBroker.Type {
	case "mqtt":
		b := bus.NewMQTTBus(bus.MQTTConfig{
			Host:     cfg.MessageBroker.MQTT.Host,
			Port:     cfg.MessageBroker.MQTT.Port,
			Username: cfg.MessageBroker.MQTT.Username,
			Password: cfg.MessageBroker.MQTT.Password,
			ClientID: cfg.MessageBroker.MQTT.ClientID,
		})
		return b, nil
	case "in_memory", "":
		return bus.NewInMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown message_broker.type %q", cfg.MessageBroker.Type)
	}
}

// buildStore constructs the BlobStore backend named by cfg.ObjectStorage.Provider.
func buildStore(cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.ObjectStorage.Provider {
	case "s3", "minio":
		return blobstore.NewS3StorageAdapter(blobstore.S3Config{
			Bucket:      cfg.ObjectStorage.BucketName,
			Region:      cfg.ObjectStorage.Region,
			EndpointURL: cfg.ObjectStorage.EndpointURL,
			AccessKey:   cfg.ObjectStorage.AccessKey,
			SecretKey:   cfg.ObjectStorage.SecretKey,
		})
	case "local", "":
		return blobstore.NewLocalStorageAdapter(cfg.ObjectStorage.LocalStoragePath)
	default:
		return nil, fmt.Errorf("unknown object_storage.provider %q", cfg.ObjectStorage.Provider)
	}
}

// pipeline bundles every worker plus the front-end's FSM/rendezvous, so
// both the "process" and "service" commands can assemble it identically.
type pipeline struct {
	broker   bus.MessageBus
	store    blobstore.BlobStore
	dl       *downloader.Downloader
	tr       *transcriber.Transcriber
	cl       *addetector.Classifier
	ae       *audioeditor.AudioEditor
	frontend *httpapi.Server
}

// buildPipeline wires every worker onto broker/store per cfg, plus the
// HTTP front-end, which owns the cross-stage FSM dispatch regardless of
// whether its Router is ever bound to a listener.
func buildPipeline(cfg *config.Config, broker bus.MessageBus, store blobstore.BlobStore, baseURL string) (*pipeline, error) {
	debugDir := ""
	if cfg.DebugOutputDir != "" {
		debugDir = cfg.DebugOutputDir
	}

	dl, err := downloader.New(store, broker, debugDir, cfg.Audio.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("building downloader: %w", err)
	}

	recognizer := transcriber.NewWhisperRecognizer(cfg.Recognizer.BaseURL)
	tr, err := transcriber.New(store, broker, recognizer, debugDir)
	if err != nil {
		return nil, fmt.Errorf("building transcriber: %w", err)
	}

	transitionPhrases := cfg.LLM.TransitionPhrases
	if len(transitionPhrases) == 0 {
		transitionPhrases = addetector.DefaultTransitionPhrases
	}
	promotionalIndicators := cfg.LLM.PromotionalIndicators
	if len(promotionalIndicators) == 0 {
		promotionalIndicators = addetector.DefaultPromotionalIndicators
	}

	classifierCfg := addetector.Config{
		ChunkSize:             cfg.LLM.ChunkSize,
		MaxAttempts:           cfg.LLM.MaxAttempts,
		Temperature:           cfg.LLM.Temperature,
		TransitionPhrases:     transitionPhrases,
		PromotionalIndicators: promotionalIndicators,
		DebugOutputDir:        debugDir,
	}
	llmClassifier := addetector.NewOpenAIClassifier(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.ModelName)
	cl, err := addetector.New(store, broker, llmClassifier, classifierCfg, debugDir)
	if err != nil {
		return nil, fmt.Errorf("building classifier: %w", err)
	}

	editor := audioeditor.NewFFmpegEditor("ffmpeg")
	ae, err := audioeditor.New(store, broker, editor, audioeditor.Config{
		MinDuration: cfg.Audio.MinDuration,
		MaxGap:      cfg.Audio.MaxGap,
	}, cfg.Audio.DownloadDir)
	if err != nil {
		return nil, fmt.Errorf("building audio editor: %w", err)
	}

	frontend := httpapi.New(broker, store, dl, baseURL)

	return &pipeline{broker: broker, store: store, dl: dl, tr: tr, cl: cl, ae: ae, frontend: frontend}, nil
}

func (p *pipeline) startAll() {
	p.dl.Start()
	p.tr.Start()
	p.cl.Start()
	p.ae.Start()
}

func (p *pipeline) stopAll() {
	p.dl.Stop()
	p.tr.Stop()
	p.cl.Stop()
	p.ae.Stop()
}

var processCommand = &cli.Command{
	Name:      "process",
	Usage:     "download, transcribe, and clean a single episode, then exit",
	ArgsUsage: "<url>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "path to write the cleaned audio to"},
		&cli.BoolFlag{Name: "keep-intermediate", Usage: "keep the downloaded audio and transcript after processing"},
	},
	Action: func(c *cli.Context) error {
		url := c.Args().First()
		if url == "" {
			return cli.Exit("process requires a podcast URL argument", 1)
		}

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if c.Bool("debug") && cfg.DebugOutputDir == "" {
			cfg.DebugOutputDir = "debug_output"
		}

		broker, err := buildBus(cfg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		store, err := buildStore(cfg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		p, err := buildPipeline(cfg, broker, store, fmt.Sprintf("http://%s:%d", cfg.WebServer.Host, cfg.WebServer.Port))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		if err := broker.Start(); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer broker.Stop()

		// Local in-memory brokers fan out synchronously with no separate
		// worker processes, so this process must host every worker itself.
		// Against an external MQTT broker, other "service" processes are
		// assumed to be running the workers and this process is a client.
		if cfg.MessageBroker.Type != "mqtt" {
			p.startAll()
			defer p.stopAll()
		}

		correlationID := uuid.NewString()
		wait := p.frontend.Rendezvous().Register(correlationID)

		p.broker.Publish(bus.NewMessage(bus.Topics.DownloadRequest, map[string]interface{}{
			"url": url,
		}, correlationID))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		result, err := rendezvous.Await(ctx, p.frontend.Rendezvous(), correlationID, wait)
		if err != nil {
			return cli.Exit(fmt.Sprintf("processing failed: %v", err), 1)
		}
		if result.Err != nil {
			return cli.Exit(fmt.Sprintf("processing failed: %v", result.Err), 1)
		}

		outputPath := c.String("output")
		if outputPath == "" {
			outputPath = result.OutputPath
		}

		f, err := os.Create(outputPath)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer f.Close()
		if err := store.Download(result.OutputPath, f); err != nil {
			return cli.Exit(fmt.Sprintf("failed to fetch cleaned audio: %v", err), 1)
		}

		if !c.Bool("keep-intermediate") {
			cleanupIntermediates(store, url)
		}

		logger.Info("process_complete", "url", url, "output", outputPath)
		fmt.Println(outputPath)
		return nil
	},
}

// cleanupIntermediates removes the downloaded source audio and its cached
// transcript, mirroring the original's process_podcast cleanup step —
// best-effort, a failure here is logged, not fatal.
func cleanupIntermediates(store blobstore.BlobStore, url string) {
	key := downloader.StorageKey(url)
	if _, err := store.Delete(key); err != nil {
		logger.Warn("cleanup_failed", "key", key, "error", err)
	}
	transcriptKey := key + ".transcript.json"
	if _, err := store.Delete(transcriptKey); err != nil {
		logger.Warn("cleanup_failed", "key", transcriptKey, "error", err)
	}
}

var serviceCommand = &cli.Command{
	Name:  "service",
	Usage: "run one or more workers long-lived, optionally behind the HTTP front-end",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "service", Aliases: []string{"s"}, Value: "all", Usage: "web | downloader | transcriber | ad-detector | audio-processor | all"},
		&cli.StringFlag{Name: "mqtt-host", Usage: "override message_broker.mqtt.host"},
		&cli.IntFlag{Name: "mqtt-port", Usage: "override message_broker.mqtt.port"},
		&cli.StringFlag{Name: "web-host", Usage: "override web_server.host"},
		&cli.IntFlag{Name: "web-port", Usage: "override web_server.port"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		if c.Bool("debug") && cfg.DebugOutputDir == "" {
			cfg.DebugOutputDir = "debug_output"
		}
		if h := c.String("mqtt-host"); h != "" {
			cfg.MessageBroker.MQTT.Host = h
		}
		if p := c.Int("mqtt-port"); p != 0 {
			cfg.MessageBroker.MQTT.Port = p
		}
		if h := c.String("web-host"); h != "" {
			cfg.WebServer.Host = h
		}
		if p := c.Int("web-port"); p != 0 {
			cfg.WebServer.Port = p
		}

		broker, err := buildBus(cfg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		store, err := buildStore(cfg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		baseURL := fmt.Sprintf("http://%s:%d", cfg.WebServer.Host, cfg.WebServer.Port)
		p, err := buildPipeline(cfg, broker, store, baseURL)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		if err := broker.Start(); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer broker.Stop()

		target := c.String("service")
		startSelected(p, target)
		defer stopSelected(p, target)

		if target == "web" || target == "all" {
			if !strings.EqualFold(cfg.LogLevel, "debug") {
				gin.SetMode(gin.ReleaseMode)
			}

			router := p.frontend.Router()
			router.Use(cors.New(cors.Config{
				AllowOrigins:     cfg.WebServer.CORSOrigins,
				AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))
			addr := fmt.Sprintf("%s:%d", cfg.WebServer.Host, cfg.WebServer.Port)
			logger.Info("web_server_listening", "addr", addr)
			srv := &http.Server{
				Addr:           addr,
				Handler:        router,
				ReadTimeout:    60 * time.Second,
				WriteTimeout:   60 * time.Second,
				MaxHeaderBytes: 1 << 20,
			}
			return srv.ListenAndServe()
		}

		// Worker-only service mode: block until killed.
		select {}
	},
}

func startSelected(p *pipeline, target string) {
	switch target {
	case "downloader":
		p.dl.Start()
	case "transcriber":
		p.tr.Start()
	case "ad-detector":
		p.cl.Start()
	case "audio-processor":
		p.ae.Start()
	case "web":
		// The front-end's FSM dispatch is always live via its
		// subscriptions; nothing extra to start.
	case "all":
		p.startAll()
	}
}

func stopSelected(p *pipeline, target string) {
	switch target {
	case "downloader":
		p.dl.Stop()
	case "transcriber":
		p.tr.Stop()
	case "ad-detector":
		p.cl.Stop()
	case "audio-processor":
		p.ae.Stop()
	case "all":
		p.stopAll()
	}
}
