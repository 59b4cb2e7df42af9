package main

import (
	"context"
	"log"
	"os"

	"homefi-backend/mcp"
	storage "homefi-backend/storage/project"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	driver := os.Getenv("HOMEFI_STORE_DRIVER")
	if driver == "" {
		driver = "memory"
	}

	ctx := context.Background()
	var store storage.Store
	var err error
	switch driver {
	case "postgres":
		dsn := os.Getenv("HOMEFI_PG_DSN")
		if dsn == "" {
			log.Fatal("HOMEFI_PG_DSN required when HOMEFI_STORE_DRIVER=postgres")
		}
		store, err = storage.NewPGStore(ctx, dsn)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
	default:
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	mcpServer := mcp.NewMCPServer(store)
	log.Printf("HomeFi MCP server starting (driver=%s)", driver)

	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
