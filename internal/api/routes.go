package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/tickers", handler.GetTickers).Methods("GET")

	// Stock routes
	api.HandleFunc("/stocks/{symbol}/history", handler.GetHistory).Methods("GET")
	api.HandleFunc("/stocks/{symbol}/history", handler.DiscardHistory).Methods("DELETE")
	api.HandleFunc("/stocks/{symbol}/forecast", handler.CreateForecast).Methods("POST")
	api.HandleFunc("/stocks/{symbol}/forecasts", handler.ListForecastRuns).Methods("GET")

	// Currency routes
	api.HandleFunc("/currencies", handler.GetCurrencies).Methods("GET")
	api.HandleFunc("/currencies/convert", handler.ConvertCurrency).Methods("GET")
	api.HandleFunc("/currencies/conversions", handler.ListConversions).Methods("GET")

	// Session routes
	api.HandleFunc("/sessions", handler.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", handler.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/ticker", handler.SelectTicker).Methods("PUT")
	api.HandleFunc("/sessions/{id}/horizon", handler.SetHorizon).Methods("PUT")
	api.HandleFunc("/sessions/{id}/predict", handler.Predict).Methods("POST")
	api.HandleFunc("/sessions/{id}/convert", handler.Convert).Methods("POST")

	return r
}
