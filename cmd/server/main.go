package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/an-dube/draftpad/internal/api"
	"github.com/an-dube/draftpad/internal/auth"
	"github.com/an-dube/draftpad/internal/config"
	"github.com/an-dube/draftpad/internal/directory"
	"github.com/an-dube/draftpad/internal/persist"
	"github.com/an-dube/draftpad/internal/store"
	"github.com/an-dube/draftpad/internal/ws"
)

func main() {
	cfg := config.Load()

	var (
		backing store.Store
		err     error
	)
	switch cfg.Backend {
	case "sqlite":
		backing, err = store.NewSQLiteStore(cfg.DBPath)
	case "file":
		backing, err = store.NewFileStore(cfg.StorageDir)
	default:
		log.Fatalf("Unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer backing.Close()

	dir := directory.New(backing)
	if err := dir.Load(); err != nil {
		// The process must not serve with a directory it cannot trust
		log.Fatalf("Failed to load document directory: %v", err)
	}

	users, err := auth.NewService(cfg.UsersDir, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("Failed to initialize users: %v", err)
	}
	if err := users.Load(); err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}

	controller := persist.New(dir, cfg.FlushDelay)

	hub := ws.NewHub(controller)
	go hub.Run()

	apiHandler := api.New(hub, dir, users, controller)

	r := mux.NewRouter()
	apiHandler.Routes(r)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWs(hub, users, w, req)
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		controller.Close()
		backing.Close()
		os.Exit(0)
	}()

	log.Printf("draftpad server starting on %s", cfg.Addr)
	log.Printf("Storage backend: %s", cfg.Backend)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws?token={jwt}")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Auth:      POST /auth/register|login|verify")
	log.Println("  - Docs:      POST /docs/create, GET /docs/all, GET/PUT/DELETE /docs/{id}")

	if err := http.ListenAndServe(cfg.Addr, corsMiddleware(r)); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
