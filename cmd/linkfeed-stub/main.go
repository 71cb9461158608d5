// Command linkfeed-stub runs the development stub backend: the REST and
// websocket boundary the linkfeed client consumes, backed by SQLite.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/natthaphon/linkfeed/app"
	"github.com/natthaphon/linkfeed/auth"
	"github.com/natthaphon/linkfeed/stub"
)

func main() {
	var (
		addr       = flag.String("addr", ":8000", "listen address")
		dbFile     = flag.String("db", "./linkfeed-stub.db", "sqlite database file")
		migrations = flag.String("migrations", "./migrations", "goose migrations directory")
		secret     = flag.String("secret", "", "JWT signing secret (required)")
	)
	flag.Parse()

	godotenv.Load()
	if *secret == "" {
		*secret = os.Getenv("LINKFEED_STUB_SECRET")
	}
	if *secret == "" {
		log.Fatal("a signing secret is required (-secret or LINKFEED_STUB_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	logger := app.NewLogger()

	store, err := stub.OpenStore(*dbFile, os.DirFS(*migrations))
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	server := stub.NewServer(store, auth.TokenOptions{
		Secret: []byte(*secret),
		Exp:    24 * time.Hour,
	}, stub.WithServerLogger(logger), stub.WithBaseContext(ctx))

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: server.Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Close()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("stub server listening on " + *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exit: %v", err)
	}
}
