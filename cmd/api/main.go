package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/BigPharmacist/wild-kaeee-sub002/internal/api"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/config"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/feed"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/geo"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/metrics"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/model"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/objstore"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/store"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/tours"
	"github.com/BigPharmacist/wild-kaeee-sub002/internal/tracking"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	metrics.RegisterDefault()

	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("connect postgres: %v", err)
		}
		if err := pg.MigrateDir("db/migrations"); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		st = pg
	}

	var f feed.Feed
	if cfg.RedisURL != "" {
		rf, err := feed.NewRedisFeed(cfg.RedisURL)
		if err != nil {
			log.Printf("redis feed unavailable, using in-memory broker: %v", err)
			f = feed.NewBroker()
		} else {
			f = rf
		}
	} else {
		f = feed.NewBroker()
	}

	var origin *model.LatLng
	if cfg.Geo.OriginLat != 0 || cfg.Geo.OriginLng != 0 {
		origin = &model.LatLng{Lat: cfg.Geo.OriginLat, Lng: cfg.Geo.OriginLng}
	}
	geocoder := geo.NewHTTPGeocoder(cfg.Geo.BaseURL, cfg.Geo.APIKey)
	router := geo.NewHTTPRouter(cfg.Geo.BaseURL, cfg.Geo.APIKey)

	files, err := objstore.NewLocal(cfg.UploadDir, "/files")
	if err != nil {
		log.Fatalf("object store: %v", err)
	}

	svc := tours.NewService(st, geocoder, router, f, origin)
	agg := tracking.NewAggregator(st, f, cfg.Tracking.RefreshInterval)
	defer agg.Close()

	srv := &api.Server{
		Store:    st,
		Feed:     f,
		Tours:    svc,
		Tracker:  agg,
		Objects:  files,
		FilesDir: files.Dir(),
	}

	addr := ":" + cfg.Port
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(srv.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("API listening on %s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
