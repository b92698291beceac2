// Package remote is an in-memory implementation of the remote persistence
// service the sync engine talks to. It serves the REST surface used by the
// rest gateway and backs tests, demos and `casesync serve`.
package remote

import (
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures a Server.
type Config struct {
	// Resources are the collections served, e.g. "notes" and "tasks".
	Resources []string
	// MetricsPath mounts the Prometheus handler when not empty.
	MetricsPath string
	Logger      *slog.Logger
}

type record struct {
	owner  string
	fields map[string]any
}

// Server holds every collection in memory.
type Server struct {
	config Config
	logger *slog.Logger
	router *gin.Engine

	mu      sync.RWMutex
	offline bool
	data    map[string]map[string]record
}

type itemBody struct {
	ID string `json:"id" binding:"required"`
}

type response struct {
	Success bool             `json:"success"`
	Items   []map[string]any `json:"items,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// New builds a Server and its router.
func New(config Config) *Server {
	if len(config.Resources) == 0 {
		config.Resources = []string{"notes", "tasks"}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		config: config,
		logger: logger,
		data:   make(map[string]map[string]record),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestMetrics(), s.availability())
	for _, resource := range config.Resources {
		s.data[resource] = make(map[string]record)
		group := router.Group("/" + resource)
		{
			group.GET("/list/:owner", s.list(resource))
			group.POST("/add/:owner", s.add(resource))
			group.PUT("/update/:id", s.update(resource))
			group.DELETE("/:id", s.remove(resource))
		}
	}
	if config.MetricsPath != "" {
		router.GET(config.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
	s.router = router
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetOffline makes every collection route answer 503 until switched back.
func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
	s.logger.Info("availability changed", "offline", offline)
}

// Count returns how many items an owner has in a collection.
func (s *Server) Count(resource, owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.data[resource] {
		if r.owner == owner {
			n++
		}
	}
	return n
}

func (s *Server) availability() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == s.config.MetricsPath {
			c.Next()
			return
		}
		s.mu.RLock()
		offline := s.offline
		s.mu.RUnlock()
		if offline {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response{Error: "service unavailable"})
			return
		}
		c.Next()
	}
}

func (s *Server) requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(c.Request.Method, route, http.StatusText(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) list(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.Param("owner")

		s.mu.RLock()
		items := make([]map[string]any, 0)
		for _, r := range s.data[resource] {
			if r.owner == owner {
				items = append(items, r.fields)
			}
		}
		s.mu.RUnlock()

		sort.Slice(items, func(i, j int) bool {
			return items[i]["id"].(string) < items[j]["id"].(string)
		})
		c.JSON(http.StatusOK, response{Success: true, Items: items})
	}
}

// add stores a new item. The client id is kept and re-sending the same id
// overwrites it, so retried creates never duplicate.
func (s *Server) add(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.Param("owner")
		id, fields, ok := s.bind(c)
		if !ok {
			return
		}
		fields["owner_id"] = owner
		fields["synced"] = true

		s.mu.Lock()
		s.data[resource][id] = record{owner: owner, fields: fields}
		s.mu.Unlock()

		s.logger.Debug("item stored", "resource", resource, "owner", owner, "id", id)
		c.JSON(http.StatusCreated, response{Success: true})
	}
}

func (s *Server) update(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		bodyID, fields, ok := s.bind(c)
		if !ok {
			return
		}
		if bodyID != id {
			c.JSON(http.StatusBadRequest, response{Error: "body id does not match path"})
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		prev, found := s.data[resource][id]
		if !found {
			c.JSON(http.StatusNotFound, response{Error: "item not found"})
			return
		}
		fields["owner_id"] = prev.owner
		fields["synced"] = true
		s.data[resource][id] = record{owner: prev.owner, fields: fields}
		c.JSON(http.StatusOK, response{Success: true})
	}
}

func (s *Server) remove(resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		s.mu.Lock()
		defer s.mu.Unlock()
		if _, found := s.data[resource][id]; !found {
			c.JSON(http.StatusNotFound, response{Error: "item not found"})
			return
		}
		delete(s.data[resource], id)
		c.JSON(http.StatusOK, response{Success: true})
	}
}

func (s *Server) bind(c *gin.Context) (string, map[string]any, bool) {
	var body itemBody
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, response{Error: "invalid request body: " + err.Error()})
		return "", nil, false
	}
	var fields map[string]any
	if err := c.ShouldBindBodyWith(&fields, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, response{Error: "invalid request body: " + err.Error()})
		return "", nil, false
	}
	delete(fields, "remote")
	return body.ID, fields, true
}
