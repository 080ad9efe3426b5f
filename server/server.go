package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/trainops/coachms/repository"
	"github.com/trainops/coachms/srvreg"
)

// WebServer handles HTTP requests for the inspection service.
type WebServer struct {
	httpAddr        string
	server          *http.Server
	logger          *slog.Logger
	startTime       time.Time
	serviceRegistry *srvreg.ServiceRegistry
	repository      *repository.Repository
}

// NewWebServer creates a new web server
func NewWebServer(httpPort string, logger *slog.Logger, serviceRegistry *srvreg.ServiceRegistry, repo *repository.Repository) *WebServer {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	ws := &WebServer{
		httpAddr: ":" + httpPort,
		server: &http.Server{
			Addr:    ":" + httpPort,
			Handler: mux,
		},
		logger:          logger,
		startTime:       time.Now(),
		serviceRegistry: serviceRegistry,
		repository:      repo,
	}

	mux.HandleFunc("/", ws.handleRoot)
	mux.HandleFunc("/debug", ws.handleDebug)
	// Service endpoints
	mux.HandleFunc("/session/", ws.handleServiceAPI)
	mux.HandleFunc("/defect", ws.handleServiceAPI)
	mux.HandleFunc("/defect/", ws.handleServiceAPI)
	mux.HandleFunc("/monitoring/", ws.handleServiceAPI)
	mux.HandleFunc("/audit", ws.handleServiceAPI)

	return ws
}

// Start starts the web server
func (ws *WebServer) Start() {
	ws.logger.Info("starting web server", "addr", ws.httpAddr)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logger.Error("web server error", "err", err)
		}
	}()
}

// Shutdown gracefully shuts down the web server
func (ws *WebServer) Shutdown(ctx context.Context) error {
	ws.logger.Info("shutting down web server")
	return ws.server.Shutdown(ctx)
}

// handleRoot shows the service banner.
func (ws *WebServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte("<h1>Coach Inspection Session Service</h1>"))
	w.Write([]byte("<p>Modules: WSP, SICKLINE, COMMISSIONARY, CAI, PITLINE</p>"))
}

// handleDebug provides debugging information
func (ws *WebServer) handleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	debugInfo := map[string]any{
		"service": "coachms",
		"uptime":  time.Since(ws.startTime).String(),
		"modules": repository.Modules,
	}

	w.Header().Set("Content-Type", "application/json")
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(debugInfo); err != nil {
		JSONError(w, "Error encoding response: "+err.Error(), http.StatusInternalServerError)
	}
}

// handleServiceAPI converts the HTTP request, dispatches it through the
// service registry, and writes the computed response.
func (ws *WebServer) handleServiceAPI(w http.ResponseWriter, r *http.Request) {
	requestID, err := generateRequestID()
	if err != nil {
		JSONError(w, "Internal Server Error", http.StatusInternalServerError)
		ws.logger.Error("failed to generate request ID", "err", err)
		return
	}

	request, err := srvreg.ConvertHTTPRequest(r, requestID)
	if err != nil {
		JSONError(w, "Failed to read request: "+err.Error(), http.StatusUnprocessableEntity)
		ws.logger.Error("failed to convert HTTP request", "request_id", requestID, "err", err)
		return
	}

	response, err := ws.serviceRegistry.Dispatch(request)
	if err != nil {
		// Handler errors are already reflected in the response body; log for
		// the trail and fall through to writing the response.
		ws.logger.Warn("request failed",
			"request_id", requestID,
			"method", request.Method,
			"path", request.Path,
			"status", response.StatusCode,
			"err", err,
		)
	} else {
		ws.logger.Info("request served",
			"request_id", requestID,
			"method", request.Method,
			"path", request.Path,
			"status", response.StatusCode,
		)
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(response.StatusCode)
	w.Write([]byte(response.Body))
}

func generateRequestID() (string, error) {
	bytes := make([]byte, 16)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// JSONError sends a JSON formatted error response with the given status code and message
func JSONError(w http.ResponseWriter, message string, statusCode int) {
	errorResponse := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}
	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonBytes)
}
