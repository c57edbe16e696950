package main

import (
	"context"

	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/webstore/backend/internal/app"
	"github.com/webstore/backend/internal/app/handlers"
	"github.com/webstore/backend/internal/config"
	"github.com/webstore/backend/internal/lib/logger"
	"github.com/webstore/backend/internal/lib/logger/handlers/urllog"
	"github.com/webstore/backend/internal/security/jwtmiddleware"
	"github.com/webstore/backend/internal/service"
	"github.com/webstore/backend/internal/storage"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	taxRate, err := decimal.NewFromString(cfg.Checkout.TaxRate)
	if err != nil {
		log.Error("invalid tax rate in config", slog.Any("error", err))
		panic(errors.Wrap(err, "invalid tax rate in config"))
	}

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	productRepo := storage.NewProductRepository(application.DB)
	cartRepo := storage.NewCartRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)
	rewardRepo := storage.NewRewardRepository(application.DB)

	emailService := service.NewEmailService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	pointsPolicy := service.PointsPerCurrencyUnit(cfg.Checkout.PointsPerUnit)

	authService := service.NewAuthService(application.Logger, userRepo, time.Duration(application.Config.JWT.TokenTTL)*time.Minute)
	cartService := service.NewCartService(application.Logger, application.DB, productRepo, cartRepo)
	checkoutService := service.NewCheckoutService(
		application.Logger,
		application.DB,
		productRepo,
		cartRepo,
		orderRepo,
		rewardRepo,
		userRepo,
		emailService,
		pointsPolicy,
		cfg.Checkout.DefaultTier,
	)
	orderService := service.NewOrderService(application.Logger, application.DB, orderRepo, productRepo)
	rewardService := service.NewRewardService(application.Logger, application.DB, rewardRepo, cfg.Checkout.DefaultTier)

	// эндпоинт для аутентификации
	router.Post("/api/auth", handlers.AuthHandler(application.Logger, authService))

	router.Group(func(r chi.Router) {
		jwtMW := jwtmiddleware.NewJWTMiddleware()
		r.Use(jwtMW)

		// карточка товара
		r.Get("/api/products/{productID}", handlers.GetProductHandler(application.Logger, productRepo))

		// корзина
		r.Get("/api/cart", handlers.GetCartHandler(application.Logger, cartService, taxRate))
		r.Post("/api/cart", handlers.AddCartItemHandler(application.Logger, cartService))
		r.Delete("/api/cart", handlers.ClearCartHandler(application.Logger, cartService))
		r.Put("/api/cart/{productID}", handlers.UpdateCartItemHandler(application.Logger, cartService))
		r.Delete("/api/cart/{productID}", handlers.RemoveCartItemHandler(application.Logger, cartService))

		// заказы
		r.Post("/api/orders", handlers.CheckoutHandler(application.Logger, checkoutService, taxRate))
		r.Get("/api/orders", handlers.ListOrdersHandler(application.Logger, orderService))
		r.Get("/api/orders/{orderID}", handlers.GetOrderHandler(application.Logger, orderService))
		r.Patch("/api/orders/{orderID}", handlers.UpdateOrderHandler(application.Logger, orderService))
		r.Post("/api/orders/{orderID}/cancel", handlers.CancelOrderHandler(application.Logger, orderService))

		// бонусная программа
		r.Post("/api/rewards", handlers.EnrollRewardHandler(application.Logger, rewardService))
		r.Get("/api/rewards", handlers.GetRewardHandler(application.Logger, rewardService))
		r.Delete("/api/rewards", handlers.CancelRewardHandler(application.Logger, rewardService))
		r.Post("/api/rewards/redeem", handlers.RedeemRewardHandler(application.Logger, rewardService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
