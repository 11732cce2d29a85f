package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elevenetc/hris/internal/channels"
	"github.com/elevenetc/hris/internal/config"
	"github.com/elevenetc/hris/internal/database"
	"github.com/elevenetc/hris/internal/events"
	"github.com/elevenetc/hris/internal/handlers"
	"github.com/elevenetc/hris/internal/jobs"
	"github.com/elevenetc/hris/internal/repository"
	cron "github.com/elevenetc/hris/internal/scheduler"
	"github.com/elevenetc/hris/internal/services"
	"github.com/elevenetc/hris/internal/ws"
	"github.com/elevenetc/hris/pkg/logger"
	"github.com/elevenetc/hris/pkg/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger()
	logger.Log.Info("Logger initialized")

	// Connect to MongoDB
	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	// --- Repositories ---
	employeeRepo := repository.NewEmployeeRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := notificationRepo.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Index creation error: %v", err)
	}
	cancel()

	// --- Event bus ---
	bus := events.NewBus(256)

	// --- Channel senders ---
	hub := ws.NewHub()
	senders := channels.SenderMap(
		channels.NewEmailSender(employeeRepo),
		channels.NewBrowserSender(hub),
		channels.NewMobileSender(),
		channels.NewSlackSender(),
	)

	// --- Services ---
	employeeService := services.NewEmployeeService(employeeRepo, bus, cfg)
	reviewService := services.NewReviewService(reviewRepo, employeeRepo, bus)
	notificationService := services.NewNotificationService(notificationRepo, bus, senders, cfg)

	// Start the delivery pipeline: registers the event handler, spins up
	// the workers and requeues deliveries left pending by a prior run.
	notificationService.Start()

	// Periodic sweeps: pending poll, stuck-delivery reaper, draft reminders.
	reminder := jobs.NewReviewReminder(reviewRepo, notificationRepo, notificationService, cfg)
	cron.StartDeliveryCronJobs(notificationService, reminder, cfg)

	// --- Handlers ---
	employeeHandler := handlers.NewEmployeeHandler(employeeService)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	wsHandler := handlers.NewWSHandler(hub, cfg.JWTSecret)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()

	// Public routes
	router.HandleFunc("/employees/register", employeeHandler.RegisterHandler).Methods("POST")
	router.HandleFunc("/employees/login", employeeHandler.LoginHandler).Methods("POST")
	router.HandleFunc("/ws", wsHandler.ConnectHandler).Methods("GET")

	// Employee routes
	protectedEmployeeRoutes := router.PathPrefix("/employees").Subrouter()
	protectedEmployeeRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedEmployeeRoutes.HandleFunc("/{id}", employeeHandler.GetEmployeeHandler).Methods("GET")
	protectedEmployeeRoutes.HandleFunc("/{id}", employeeHandler.UpdateEmployeeHandler).Methods("PATCH")
	protectedEmployeeRoutes.HandleFunc("/{id}/reports", employeeHandler.GetDirectReportsHandler).Methods("GET")
	protectedEmployeeRoutes.HandleFunc("/{id}/subtree", employeeHandler.GetSubtreeHandler).Methods("GET")

	// Org-tree mutations require the HR role
	hrRoutes := router.PathPrefix("/employees").Subrouter()
	hrRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	hrRoutes.Use(middleware.RequireRole("hr"))
	hrRoutes.HandleFunc("/{id}", employeeHandler.DeleteEmployeeHandler).Methods("DELETE")
	hrRoutes.HandleFunc("/{id}/manager", employeeHandler.ChangeManagerHandler).Methods("PUT")

	// Review routes
	protectedReviewRoutes := router.PathPrefix("/reviews").Subrouter()
	protectedReviewRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedReviewRoutes.HandleFunc("", reviewHandler.CreateReviewHandler).Methods("POST")
	protectedReviewRoutes.HandleFunc("", reviewHandler.GetMyReviewsHandler).Methods("GET")
	protectedReviewRoutes.HandleFunc("/{id}", reviewHandler.GetReviewHandler).Methods("GET")
	protectedReviewRoutes.HandleFunc("/{id}", reviewHandler.UpdateReviewHandler).Methods("PATCH")
	protectedReviewRoutes.HandleFunc("/{id}/submit", reviewHandler.SubmitReviewHandler).Methods("POST")

	// Notification routes
	protectedNotificationRoutes := router.PathPrefix("/notifications").Subrouter()
	protectedNotificationRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedNotificationRoutes.HandleFunc("", notificationHandler.GetUserNotificationsHandler).Methods("GET")
	protectedNotificationRoutes.HandleFunc("/unread-count", notificationHandler.CountUnreadHandler).Methods("GET")
	protectedNotificationRoutes.HandleFunc("/read-all", notificationHandler.MarkAllAsReadHandler).Methods("POST")
	protectedNotificationRoutes.HandleFunc("/{id}/read", notificationHandler.MarkAsReadHandler).Methods("POST")
	protectedNotificationRoutes.HandleFunc("/{id}/deliveries", notificationHandler.GetDeliveriesHandler).Methods("GET")
	protectedNotificationRoutes.HandleFunc("/{id}", notificationHandler.DeleteNotificationHandler).Methods("DELETE")

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	handler := c.Handler(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		fmt.Printf("Server running on port %s\n", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Drain the pipeline before exiting
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	bus.Close()
	notificationService.Stop()
}
