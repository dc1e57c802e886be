package web

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetRoutes настраивает маршруты JSON API
func (app *WebApp) SetRoutes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.Use(app.authMiddleware)

	api.HandleFunc("/dashboard", app.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/employees", app.handleEmployees).Methods(http.MethodGet)
	api.HandleFunc("/employees/{id:[0-9]+}/stats", app.handleEmployeeStats).Methods(http.MethodGet)

	admin := api.PathPrefix("").Subrouter()
	admin.Use(app.adminMiddleware)
	admin.HandleFunc("/employees/{id:[0-9]+}/active", app.handleEmployeeActive).Methods(http.MethodPost)
	admin.HandleFunc("/settings", app.handleGetSettings).Methods(http.MethodGet)
	admin.HandleFunc("/settings", app.handleUpdateSettings).Methods(http.MethodPost)
	admin.HandleFunc("/export", app.handleExport).Methods(http.MethodPost)

	return router
}
