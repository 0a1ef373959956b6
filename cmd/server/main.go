package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/gambinos/reservation-book/internal/booking"
	"github.com/gambinos/reservation-book/internal/config"
	"github.com/gambinos/reservation-book/internal/database"
	"github.com/gambinos/reservation-book/internal/handler"
	"github.com/gambinos/reservation-book/internal/middleware"
	"github.com/gambinos/reservation-book/internal/queue"
	"github.com/gambinos/reservation-book/internal/router"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store/mysql"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	sched := schedule.NewDefault()
	st := mysql.New(db, sched, cfg.DefaultTablesPerSlot)
	svc := booking.NewService(st, sched, booking.Config{
		MaxDurationSlots: cfg.MaxDurationSlots,
		SeriesMaxDays:    cfg.SeriesMaxDays,
		BanThreshold:     cfg.NoShowBanThreshold,
		BanWindowDays:    cfg.NoShowBanWindowDays,
	})

	users := mysql.NewUserStore(db)
	tokens := mysql.NewTokenStore(db)

	e := echo.New()
	e.HideBanner = true

	// Redis is optional: when unreachable, rate limiting and response
	// caching silently disable themselves.  The response cache is scoped
	// to the public availability grid; it must not front authenticated
	// routes.
	rdb := config.NewRedisClient()
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterPublic(e, handler.NewAvailabilityHandler(svc), cache)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterCustomer(e, handler.NewBookingHandler(svc, st, sched), cfg.JWTSecret)
	router.RegisterStaff(e, handler.NewStaffHandler(svc, st, sched), cfg.JWTSecret)

	// Notification consumer reconnects forever in the background; the
	// API stays up when the broker is down.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("reservation book listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
