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

package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/efchatnet/relaygate/backend/config"
	"github.com/efchatnet/relaygate/backend/courier"
	"github.com/efchatnet/relaygate/backend/endpoint"
	"github.com/efchatnet/relaygate/backend/handlers"
	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/middleware"
	"github.com/efchatnet/relaygate/backend/parcels"
	"github.com/efchatnet/relaygate/backend/preregistration"
	redisstore "github.com/efchatnet/relaygate/backend/storage/redis"

	"github.com/efchatnet/relaygate/backend/storage/disk"
	"github.com/efchatnet/relaygate/backend/storage/postgres"
)

var log = logging.MustGetLogger("server")

func main() {
	setupLogging()
	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	store := postgres.NewStore(db)
	if err := store.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	blobs, err := disk.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open data directory: %v", err)
	}

	collections := redisstore.NewCollectionStore(rdb)
	keys := keystore.New(blobs)
	parcelService := parcels.NewService(store, blobs)
	registration := endpoint.NewRegistration(store, keys)

	courierClient := courier.NewHTTPClient(cfg.CourierURL)
	generator := courier.NewGenerateCargo(store, parcelService, keys, cfg.RelayAddress)
	processor := courier.NewProcessCargo(blobs, parcelService, collections)
	courierSync := courier.NewSync(courierClient, generator, processor, blobs)

	registrationHandler := handlers.NewRegistrationHandler(registration)
	deliveryHandler := handlers.NewDeliveryHandler(parcelService)
	collectionHandler := handlers.NewCollectionHandler(func() *endpoint.CollectParcels {
		return endpoint.NewCollectParcels(store, parcelService, collections)
	})
	statusHandler := handlers.NewStatusHandler(store, store, store)
	syncHandler := handlers.NewSyncHandler(courierSync)

	r := mux.NewRouter()
	r.Use(middleware.Logging)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.LocalOnly)
	api.HandleFunc("/nodes", registrationHandler.Register).Methods("POST")
	api.HandleFunc("/parcels", deliveryHandler.Deliver).Methods("POST")
	api.HandleFunc("/parcel-collection", collectionHandler.Collect).Methods("GET")
	api.HandleFunc("/status", statusHandler.Status).Methods("GET")
	api.HandleFunc("/courier-sync", syncHandler.Trigger).Methods("POST")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	servePreregistration(cfg, registration, store)

	log.Infof("Gateway server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// servePreregistration exposes the authorization endpoint to local
// applications over a Unix socket.
func servePreregistration(cfg config.Config, registration *endpoint.Registration, store *postgres.Store) {
	os.Remove(cfg.SocketPath)
	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.SocketPath, err)
	}

	resolver := &preregistration.PeerCredentialResolver{
		ApplicationIDForUID: func(uid uint32) (string, bool) {
			// Each local application runs under its own UID; the host
			// publishes the mapping through the environment.
			id := os.Getenv("APP_UID_" + strconv.FormatUint(uint64(uid), 10))
			return id, id != ""
		},
	}
	service := preregistration.NewService(registration, store, resolver)
	go func() {
		if err := service.Serve(context.Background(), listener); err != nil {
			log.Errorf("Pre-registration listener failed: %v", err)
		}
	}()
}

func setupLogging() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	format := logging.MustStringFormatter(
		"%{time:15:04:05.000} %{level:.4s} %{module}: %{message}",
	)
	formatter := logging.NewBackendFormatter(backend, format)
	logging.SetBackend(formatter)
}
