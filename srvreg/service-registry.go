package srvreg

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/trainops/coachms/audit"
	"github.com/trainops/coachms/repository"
)

// Request represents the client's original HTTP request, decoupled from
// net/http so handlers stay testable.
type Request struct {
	Method     string               `json:"method"`
	Path       string               `json:"path"`
	Query      url.Values           `json:"-"`
	Headers    map[string]string    `json:"headers"`
	Body       string               `json:"body"`
	RemoteAddr string               `json:"remote_addr"`
	RequestID  string               `json:"request_id"`
	Timestamp  time.Time            `json:"timestamp"`
	Principal  repository.Principal `json:"-"`
}

// Response represents the computed response for a request.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

// ServiceHandler is a function type for service handlers
type ServiceHandler func(*Request) (*Response, error)

// RouteKey is used to uniquely identify a route
type RouteKey struct {
	Method string
	Path   string
}

// ServiceRegistry manages all service handlers
type ServiceRegistry struct {
	handlers    map[RouteKey]ServiceHandler
	exactRoutes map[RouteKey]bool
	mu          sync.RWMutex
	repository  *repository.Repository
	trail       *audit.Trail
	logger      *slog.Logger
}

// NewServiceRegistry creates a new service registry
func NewServiceRegistry(repo *repository.Repository, trail *audit.Trail, logger *slog.Logger) *ServiceRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceRegistry{
		handlers:    make(map[RouteKey]ServiceHandler),
		exactRoutes: make(map[RouteKey]bool),
		repository:  repo,
		trail:       trail,
		logger:      logger,
	}
}

// ConvertHTTPRequest converts an http.Request into a Request. The principal
// is taken from the X-Inspector-ID and X-Role headers; authentication itself
// happens upstream of this service.
func ConvertHTTPRequest(r *http.Request, requestID string) (*Request, error) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	body := ""
	if r.Body != nil {
		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = strings.TrimSpace(string(bodyBytes))
	}

	return &Request{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Headers:    headers,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		RequestID:  requestID,
		Timestamp:  time.Now(),
		Principal: repository.Principal{
			ID:   r.Header.Get("X-Inspector-ID"),
			Role: r.Header.Get("X-Role"),
		},
	}, nil
}

// RegisterHandler registers a new service handler
func (sr *ServiceRegistry) RegisterHandler(method, path string, isExactPath bool, handler ServiceHandler) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	sr.handlers[key] = handler
	sr.exactRoutes[key] = isExactPath
}

// GetHandlerForPath finds the handler for a path and reports whether one was
// found. Exact routes win over pattern routes.
func (sr *ServiceRegistry) GetHandlerForPath(method, path string) (ServiceHandler, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	key := RouteKey{Method: strings.ToUpper(method), Path: path}
	if handler, ok := sr.handlers[key]; ok {
		if sr.exactRoutes[key] {
			return handler, true
		}
	}

	for routeKey, handler := range sr.handlers {
		if routeKey.Method != strings.ToUpper(method) {
			continue
		}
		if sr.exactRoutes[routeKey] {
			continue
		}
		if matchPath(routeKey.Path, path) {
			return handler, true
		}
	}

	return nil, false
}

// matchPath does simple pattern matching for routes.
// It supports patterns like "/session/:id/submit" matching "/session/SES-1/submit".
func matchPath(pattern, path string) bool {
	patternParts := strings.Split(pattern, "/")
	pathParts := strings.Split(path, "/")

	if len(patternParts) != len(pathParts) {
		return false
	}

	for i := range len(patternParts) {
		if strings.HasPrefix(patternParts[i], ":") {
			continue
		}
		if patternParts[i] != pathParts[i] {
			return false
		}
	}

	return true
}

// RegisterDefaultServices sets up the inspection service endpoints.
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Session lifecycle
	sr.RegisterHandler("POST", "/session/start", true, sr.StartSessionHandler)
	sr.RegisterHandler("GET", "/session/:id", false, sr.GetSessionHandler)
	sr.RegisterHandler("POST", "/session/:id/answers", false, sr.AutosaveHandler)
	sr.RegisterHandler("POST", "/session/:id/submit", false, sr.SubmitSessionHandler)
	sr.RegisterHandler("POST", "/session/:id/complete", false, sr.CompleteSessionHandler)
	sr.RegisterHandler("GET", "/session/:id/progress", false, sr.ProgressHandler)
	sr.RegisterHandler("GET", "/session/:id/defects", false, sr.SessionDefectsHandler)
	// Defect ledger
	sr.RegisterHandler("POST", "/defect", true, sr.RaiseDefectHandler)
	sr.RegisterHandler("POST", "/defect/:id/resolve", false, sr.ResolveDefectHandler)
	// Monitoring
	sr.RegisterHandler("GET", "/monitoring/sessions", true, sr.MonitoringSessionsHandler)
	sr.RegisterHandler("GET", "/monitoring/defects", true, sr.MonitoringDefectsHandler)
	sr.RegisterHandler("GET", "/monitoring/summary", true, sr.MonitoringSummaryHandler)
	// Audit trail
	sr.RegisterHandler("GET", "/audit", true, sr.AuditHandler)
}

// Dispatch executes the request against the registered handlers.
func (sr *ServiceRegistry) Dispatch(req *Request) (*Response, error) {
	handler, found := sr.GetHandlerForPath(req.Method, req.Path)
	if !found {
		return &Response{
			StatusCode: http.StatusNotFound,
			Headers:    map[string]string{"Content-Type": "application/json"},
			Body:       `{"error":"no service registered for this route"}`,
		}, nil
	}
	return handler(req)
}
