package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"member-portal/internal/audit"
	authservice "member-portal/internal/auth/service"
	"member-portal/internal/authz"
	"member-portal/internal/config"
	"member-portal/internal/gitstore"
	"member-portal/internal/mailer"
	"member-portal/internal/member/directory"
	mutationservice "member-portal/internal/mutation/service"
	otpstore "member-portal/internal/otp/store"
	"member-portal/internal/security"
	"member-portal/internal/server"
	telemetryotel "member-portal/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "member-portal", false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	contents := gitstore.NewClient(ctx, cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo)
	dir := directory.NewGitHubDirectory(contents, cfg.DataBranch, cfg.MembersFile)
	auditLog := audit.NewLogger(contents, cfg.StateBranch)

	var store otpstore.Store
	var stopSweeper func()
	switch cfg.OTPStore {
	case "github":
		initCtx, cancel := context.WithTimeout(ctx, cfg.RemoteTimeout())
		store, err = otpstore.NewGitHubStore(initCtx, contents, cfg.StateBranch)
		cancel()
		if err != nil {
			log.Fatalf("otp store: %v", err)
		}
	default:
		mem := otpstore.NewMemoryStore()
		stopSweeper = mem.StartSweeper(time.Minute)
		store = mem
	}

	var m mailer.Mailer = mailer.LogMailer{}
	if cfg.ResendAPIKey != "" {
		m = mailer.NewResendClient(cfg.ResendAPIKey, cfg.FromEmail)
	}

	fieldPolicy := ""
	if cfg.FieldPolicyFile != "" {
		data, err := os.ReadFile(cfg.FieldPolicyFile)
		if err != nil {
			log.Fatalf("field policy: %v", err)
		}
		fieldPolicy = string(data)
	}
	fields, err := authz.NewAuthorizer(fieldPolicy)
	if err != nil {
		log.Fatalf("field policy: %v", err)
	}

	tokens := security.NewTokenProvider([]byte(cfg.TokenSecret), cfg.BearerTTL())

	auth := authservice.NewAuthService(
		store, dir, m, tokens, auditLog,
		[]byte(cfg.TokenSecret),
		cfg.CodeTTL(), cfg.OTPMaxAttempts, cfg.RemoteTimeout(),
	)
	mutations := mutationservice.NewMutationService(
		tokens, fields, dir, contents, auditLog,
		cfg.DataBranch, cfg.MembersFile, cfg.RemoteTimeout(),
	)

	e := server.NewEcho(server.NewHandler(auth, mutations))

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if stopSweeper != nil {
		stopSweeper()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
