package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/catalog-importer/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(
	health http.HandlerFunc,
	jobs *handlers.JobHandler,
	products *handlers.ProductHandler,
	webhooks *handlers.WebhookHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", health).Methods(http.MethodGet)

	// Imports and progress
	router.HandleFunc("/upload", jobs.Upload).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{jobID}", jobs.GetJob).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{jobID}/events", jobs.Events).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{jobID}/ws", jobs.Socket).Methods(http.MethodGet)

	// Catalog
	router.HandleFunc("/products", products.List).Methods(http.MethodGet)
	router.HandleFunc("/products", products.Create).Methods(http.MethodPost)
	router.HandleFunc("/products", products.DeleteAll).Methods(http.MethodDelete)
	router.HandleFunc("/products/{productID}", products.Update).Methods(http.MethodPut)
	router.HandleFunc("/products/{productID}", products.Delete).Methods(http.MethodDelete)

	// Webhooks
	router.HandleFunc("/webhooks", webhooks.List).Methods(http.MethodGet)
	router.HandleFunc("/webhooks", webhooks.Create).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/{webhookID}", webhooks.Update).Methods(http.MethodPut)
	router.HandleFunc("/webhooks/{webhookID}", webhooks.Delete).Methods(http.MethodDelete)
	router.HandleFunc("/webhooks/{webhookID}/test", webhooks.Test).Methods(http.MethodPost)

	return router
}
