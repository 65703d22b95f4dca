package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alertapp "property-monitor/internal/alerts/application"
	alertrepo "property-monitor/internal/alerts/infrastructure/postgres"
	alerthttp "property-monitor/internal/alerts/interfaces/http"
	alertnotify "property-monitor/internal/alerts/notify"
	apihttp "property-monitor/internal/api/http"
	"property-monitor/internal/audit"
	"property-monitor/internal/auth"
	devices "property-monitor/internal/devices/domain"
	devicerepo "property-monitor/internal/devices/infrastructure/postgres"
	ingestion "property-monitor/internal/ingestion/application"
	ingesthttp "property-monitor/internal/ingestion/interfaces/http"
	ingestmqtt "property-monitor/internal/ingestion/interfaces/mqtt"
	"property-monitor/internal/observability/metrics"
	readings "property-monitor/internal/readings/domain"
	readingrepo "property-monitor/internal/readings/infrastructure/postgres"
	readingcache "property-monitor/internal/readings/infrastructure/redis"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	deviceRepo := devicerepo.NewDeviceRepository(db)
	readingRepo := readingrepo.NewReadingRepository(db)
	ruleRepo := alertrepo.NewRuleRepository(db)
	alertRepo := alertrepo.NewAlertRepository(db)

	authenticator, err := devices.NewAuthenticator(deviceRepo, nil)
	if err != nil {
		logger.Fatalf("authenticator error: %v", err)
	}
	normalizer := readings.NewNormalizer(readings.SystemClock{})

	notifyCfg, err := alertnotify.LoadConfig()
	if err != nil {
		logger.Fatalf("alert notify config error: %v", err)
	}
	alertBroker := alerthttp.NewSSEBroker()
	alertNotifiers := []alertapp.AlertNotifier{alertBroker}
	if notifyCfg.WebhookURL != "" {
		channel, err := alertnotify.NewWebhookChannel(notifyCfg.WebhookURL)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		tpl, err := alertnotify.NewTemplate(notifyCfg.Template)
		if err != nil {
			logger.Fatalf("alert template error: %v", err)
		}
		webhookNotifier, err := alertnotify.NewNotifier(ruleRepo, deviceRepo, channel, tpl,
			alertnotify.WithCooldown(notifyCfg.Cooldown),
			alertnotify.WithDedupeWindow(notifyCfg.DedupeWindow),
		)
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		alertNotifiers = append(alertNotifiers, webhookNotifier)
	}

	evaluator, err := alertapp.NewEvaluator(ruleRepo, alertRepo,
		alertapp.WithNotifier(alertnotify.NewMultiNotifier(alertNotifiers...)),
	)
	if err != nil {
		logger.Fatalf("evaluator error: %v", err)
	}

	coordinatorOpts := []ingestion.CoordinatorOption{ingestion.WithEvaluator(evaluator)}
	var latestCache *readingcache.LatestCache
	if cfg.RedisAddr != "" {
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		latestCache, err = readingcache.NewLatestCache(redisClient)
		if err != nil {
			logger.Fatalf("latest cache error: %v", err)
		}
		coordinatorOpts = append(coordinatorOpts, ingestion.WithLatestRecorder(latestCache))
	}

	coordinator, err := ingestion.NewCoordinator(authenticator, normalizer, readingRepo, deviceRepo, logger, coordinatorOpts...)
	if err != nil {
		logger.Fatalf("coordinator error: %v", err)
	}

	ingestHandler, err := ingesthttp.NewIngestHandler(coordinator, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}

	if cfg.MQTTBroker != "" {
		opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(cfg.MQTTClientID)
		client := mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Fatalf("mqtt connect error: %v", token.Error())
		}
		consumer, err := ingestmqtt.NewConsumer(client, coordinator, cfg.MQTTTopic, logger)
		if err != nil {
			logger.Fatalf("mqtt consumer error: %v", err)
		}
		if err := consumer.Start(); err != nil {
			logger.Fatalf("mqtt subscribe error: %v", err)
		}
		logger.Printf("mqtt consuming from %s on %s", cfg.MQTTTopic, cfg.MQTTBroker)
	}

	alertHandler, err := alerthttp.NewHandler(alertRepo, deviceRepo, audit.NewRepository(db))
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	exportPDF, err := alerthttp.NewExportHandler(alertRepo, "pdf")
	if err != nil {
		logger.Fatalf("alert pdf export error: %v", err)
	}
	exportXLSX, err := alerthttp.NewExportHandler(alertRepo, "xlsx")
	if err != nil {
		logger.Fatalf("alert xlsx export error: %v", err)
	}

	var latestSource apihttp.LatestSource
	if latestCache != nil {
		latestSource = latestCache
	}
	latestHandler, err := apihttp.NewLatestReadingsHandler(deviceRepo, readingRepo, latestSource)
	if err != nil {
		logger.Fatalf("latest readings handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", ingestHandler)
	mux.Handle("/api/v1/readings/latest", latestHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(alertBroker))
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/exports/alerts.pdf", exportPDF)
	mux.Handle("/api/v1/exports/alerts.xlsx", exportXLSX)
	mux.Handle("/api/v1/exports/readings.csv", apihttp.NewExportReadingsCSVHandler(db, deviceRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL  string
	HTTPAddr     string
	JWTSecret    string
	RedisAddr    string
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RedisAddr:    getenvDefault("REDIS_ADDR", ""),
		MQTTBroker:   getenvDefault("MQTT_BROKER", ""),
		MQTTTopic:    getenvDefault("MQTT_TOPIC", "property/+/readings"),
		MQTTClientID: getenvDefault("MQTT_CLIENT_ID", "property-monitor"),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
