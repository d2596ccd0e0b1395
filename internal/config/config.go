package config

import (
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"
)

/*
	{
	"redis": {
		"addr": "redis:6379",
		"db": 0
	},
	"backend": {
		"base_url": "https://api.example.com/v1",
		"api_key": ""						// usually injected via BACKEND_API_KEY
	},
	"transport": {
		"ws_url": ""						// set to route pub/sub through a ws gateway instead of Redis
	},
	"room": { "id": "coinflip-main" },
	"sync": {
		"round_history_cap": 50,
		"ledger_cap": 50,
		"settlement_timeout_seconds": 120
	},
	"status_api": {
		"port": 8090,
		"allowed_origins": ["http://localhost:5173"]
	}
	}
*/

type Config struct {
	Redis struct {
		Addr string `json:"addr"`
		DB   int    `json:"db"`
	} `json:"redis"`
	Backend struct {
		BaseURL string `json:"base_url"`
		APIKey  string `json:"api_key"`
	} `json:"backend"`
	Transport struct {
		WSUrl string `json:"ws_url,omitempty"`
	} `json:"transport"`
	Room struct {
		ID string `json:"id"`
	} `json:"room"`
	Sync struct {
		RoundHistoryCap          int `json:"round_history_cap"`
		LedgerCap                int `json:"ledger_cap"`
		SettlementTimeoutSeconds int `json:"settlement_timeout_seconds"`
	} `json:"sync"`
	StatusAPI struct {
		Port           int      `json:"port"`
		AllowedOrigins []string `json:"allowed_origins"`
	} `json:"status_api"`
}

// Global config instance
var Cfg Config

func LoadConfig() {
	// Optional .env for local development; missing file is fine.
	godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("[config.go] - CONFIG_PATH not set")
	}

	file, err := os.Open(configPath)
	if err != nil {
		log.Fatalf("[config.go] - Error opening config file: %v", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&Cfg); err != nil {
		log.Fatalf("[config.go] - Error decoding JSON: %v", err)
	}

	// Secrets take precedence from the environment so the config file can be
	// committed without them.
	if key := os.Getenv("BACKEND_API_KEY"); key != "" {
		Cfg.Backend.APIKey = key
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		Cfg.Redis.Addr = addr
	}

	if Cfg.Sync.RoundHistoryCap <= 0 {
		Cfg.Sync.RoundHistoryCap = 50
	}
	if Cfg.Sync.LedgerCap <= 0 {
		Cfg.Sync.LedgerCap = 50
	}
	if Cfg.Sync.SettlementTimeoutSeconds <= 0 {
		Cfg.Sync.SettlementTimeoutSeconds = 120
	}
}
