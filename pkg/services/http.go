package services

import (
	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"
)

// HTTPExtension is a service that serves part of the monitor's HTTP API.
type HTTPExtension interface {
	services.Service
	ConfigureHTTP(*mux.Router)
}
