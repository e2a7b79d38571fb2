// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads gateway settings from the environment, with an
// optional .env file for development.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("config")

// Config carries everything the gateway needs at startup.
type Config struct {
	// Port of the local endpoint-facing HTTP server.
	Port string
	// SocketPath of the pre-registration Unix socket.
	SocketPath string

	DatabaseURL string
	RedisAddr   string
	// DataDir holds parcel blobs, staged cargo and key material.
	DataDir string

	// CourierURL is the base URL of the courier's cargo API.
	CourierURL string
	// RelayAddress is the public address of the internet relay this
	// gateway is paired with, used as the cargo recipient.
	RelayAddress string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Info("loaded settings from .env")
	}

	return Config{
		Port:         getEnv("PORT", "8081"),
		SocketPath:   getEnv("PREREGISTRATION_SOCKET", "/tmp/relaygate-preregistration.sock"),
		DatabaseURL:  getEnv("DATABASE_URL", "postgres://localhost/relaygate?sslmode=disable"),
		RedisAddr:    getEnv("REDIS_URL", "localhost:6379"),
		DataDir:      getEnv("DATA_DIR", "./data"),
		CourierURL:   getEnv("COURIER_URL", "http://192.168.43.1:8080"),
		RelayAddress: getEnv("RELAY_ADDRESS", ""),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer setting, falling back on parse failure.
func GetEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warningf("ignoring non-numeric %s=%q", key, value)
		return fallback
	}
	return n
}
