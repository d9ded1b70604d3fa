package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/botline/server/api"
	"github.com/botline/server/chat"
	"github.com/botline/server/config"
	"github.com/botline/server/directline"
	"github.com/botline/server/logger"
	"github.com/botline/server/middleware"
	"github.com/botline/server/poll"
	"github.com/botline/server/session"
)

func newHandler(chatClient *chat.Client, authToken string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	api.NewHandler(chatClient).Register(mux)

	return middleware.Auth(authToken)(mux)
}

func newSessionStore(dataDir string) (session.Store, func(), error) {
	if os.Getenv("SESSION_STORE") == "file" {
		store, err := session.NewFileStore(dataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	store := session.NewMemoryStore()
	store.Start()
	return store, store.Stop, nil
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logger.Init(logger.Config{
		DataDir: dataDir,
		DevMode: os.Getenv("DEV_MODE") == "1",
	})

	secret := os.Getenv("DIRECT_LINE_SECRET")
	if secret == "" {
		log.Println("warning: DIRECT_LINE_SECRET is not set, conversation creation will fail")
	}

	cfgStore, err := config.NewStore(dataDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	watcher := config.NewWatcher(cfgStore)
	if err := watcher.Start(); err != nil {
		log.Printf("config watcher disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	store, stopStore, err := newSessionStore(dataDir)
	if err != nil {
		log.Fatalf("failed to create session store: %v", err)
	}
	defer stopStore()

	dlClient := directline.NewClient(os.Getenv("DIRECT_LINE_URL"), secret)
	poller := poll.New(dlClient, store)
	chatClient := chat.NewClient(store, dlClient, poller, cfgStore)

	handler := newHandler(chatClient, os.Getenv("AUTH_TOKEN"))

	server := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
		// The write timeout must stay above the worst-case turn latency:
		// initial delay + attempts * interval.
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("Server starting on :%s (dataDir: %s)", port, dataDir)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
