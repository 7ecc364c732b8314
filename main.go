package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/sharepool/src/config"
	"github.com/username/sharepool/src/database"
	"github.com/username/sharepool/src/handlers"
	"github.com/username/sharepool/src/logger"
	"github.com/username/sharepool/src/processors"
	"github.com/username/sharepool/src/security"
	"github.com/username/sharepool/src/services"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Sharepool backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Loading market data...",
		"stockPrices", config.Cfg.StockPricePath,
		"forexRates", config.Cfg.ForexRatePath,
		"holidays", config.Cfg.HolidayPath)
	vestPrices, err := processors.NewVestPriceCalculator(
		config.Cfg.StockPricePath, config.Cfg.ForexRatePath, config.Cfg.HolidayPath)
	if err != nil {
		logger.L.Error("Failed to load market data. Vest pricing and GBP backfill will be unavailable until refreshed.", "error", err)
		vestPrices = nil
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	reportCache := cache.New(15*time.Minute, 30*time.Minute)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(authService)

	disposalProcessor := processors.NewSection104Processor()
	uploadService := services.NewUploadService(disposalProcessor, vestPrices, reportCache)
	priceService := services.NewPriceService()

	uploadHandler := handlers.NewUploadHandler(uploadService)
	cgtHandler := handlers.NewCGTHandler(uploadService)
	eventHandler := handlers.NewEventHandler(uploadService, priceService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/auth/login", userHandler.LoginUserHandler)
	apiRouter.HandleFunc("POST /api/auth/register", userHandler.RegisterUserHandler)
	apiRouter.HandleFunc("POST /api/auth/refresh", userHandler.RefreshTokenHandler)
	apiRouter.HandleFunc("POST /api/auth/logout", userHandler.LogoutUserHandler)

	authOnly := func(handler http.HandlerFunc) http.Handler {
		return userHandler.AuthMiddleware(handler)
	}

	apiRouter.Handle("POST /api/upload", authOnly(uploadHandler.HandleUpload))
	apiRouter.Handle("GET /api/cgt/report", authOnly(cgtHandler.HandleGetReport))
	apiRouter.Handle("GET /api/cgt/pool", authOnly(cgtHandler.HandleGetPool))
	apiRouter.Handle("GET /api/cgt/audit", authOnly(cgtHandler.HandleGetAuditTrail))
	apiRouter.Handle("GET /api/cgt/disposals.csv", authOnly(cgtHandler.HandleExportDisposalsCSV))
	apiRouter.Handle("GET /api/events", authOnly(eventHandler.HandleGetEvents))
	apiRouter.Handle("DELETE /api/events/all", authOnly(eventHandler.HandleDeleteAllEvents))
	apiRouter.Handle("POST /api/events/exercise", authOnly(eventHandler.HandleAddExercise))
	apiRouter.Handle("POST /api/market-data/refresh", authOnly(eventHandler.HandleRefreshMarketData))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Sharepool backend is running"})
		} else if !strings.HasPrefix(r.URL.Path, "/api/") {
			logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
			http.NotFound(w, r)
		}
	})

	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
