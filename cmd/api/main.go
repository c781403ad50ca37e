package main

import (
	"context"
	"fmt"

	"elmzad-backend/internal/config"
	"elmzad-backend/internal/infrastructure/database"
	"elmzad-backend/internal/interfaces/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}

	app, db, rdb, err := router.CreateApp(cfg)
	if err != nil {
		panic("app create: " + err.Error())
	}

	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			panic("Postgres: get DB: " + err.Error())
		}
		if err := sqlDB.Ping(); err != nil {
			panic("Postgres connection failed: " + err.Error())
		}
		fmt.Println("Postgres connected")

		if cfg.Env != "production" {
			if err := database.AutoMigrate(db); err != nil {
				panic("migrate: " + err.Error())
			}
		}
	}
	if rdb != nil {
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			panic("Redis connection failed: " + err.Error())
		}
		fmt.Println("Redis connected")
	}

	port := cfg.Port
	if port == "" {
		port = "8888"
	}
	fmt.Printf("Server running at http://localhost:%s\n", port)
	fmt.Printf("Health check: http://localhost:%s/health/json\n", port)
	fmt.Println("---")

	if err := app.Listen(":" + port); err != nil {
		panic(err)
	}
}
