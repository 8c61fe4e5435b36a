// Package server exposes the SCIM protocol endpoints per RFC 7644 over the
// resource dispatch service.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openidx/scimcore/config"
	"github.com/openidx/scimcore/messages"
	"github.com/openidx/scimcore/registry"
	"github.com/openidx/scimcore/resources"
	"github.com/openidx/scimcore/scim"
)

// ContentType is the SCIM media type (RFC 7644 3.1)
const ContentType = "application/scim+json"

// Server serves the SCIM endpoints of every declared resource type plus the
// discovery endpoints
type Server struct {
	service  *resources.Service
	registry *registry.Registry
	provider config.ServiceProvider
	baseURL  string
	logger   *zap.Logger
}

// New creates a server over a dispatch service and its registry
func New(service *resources.Service, reg *registry.Registry, provider config.ServiceProvider, baseURL string, logger *zap.Logger) *Server {
	return &Server{service: service, registry: reg, provider: provider, baseURL: baseURL, logger: logger}
}

// RegisterRoutes registers SCIM 2.0 endpoints with the Gin router
func (s *Server) RegisterRoutes(r gin.IRouter) {
	// Resource endpoints (RFC 7644 Section 3.3)
	for _, decl := range s.registry.ResourceTypes() {
		name := decl.Name
		group := r.Group("/scim/v2" + decl.Endpoint)
		{
			group.GET("", MetricsMiddleware(name, "query"), s.handleQuery(name))
			group.POST("", MetricsMiddleware(name, "create"), s.handleCreate(name))
			group.GET("/:id", MetricsMiddleware(name, "read"), s.handleRead(name))
			group.PUT("/:id", MetricsMiddleware(name, "replace"), s.handleReplace(name))
			group.PATCH("/:id", MetricsMiddleware(name, "patch"), s.handlePatch(name))
			group.DELETE("/:id", MetricsMiddleware(name, "delete"), s.handleDelete(name))
		}
	}

	// Discovery endpoints (RFC 7644 Section 4)
	r.GET("/scim/v2/ServiceProviderConfig", s.handleServiceProviderConfig)
	r.GET("/scim/v2/ResourceTypes", s.handleResourceTypes)
	r.GET("/scim/v2/Schemas", s.handleSchemas)
}

func (s *Server) respond(c *gin.Context, status int, body any) {
	c.Header("Content-Type", ContentType)
	c.JSON(status, body)
}

func (s *Server) fail(c *gin.Context, err error) {
	msg := messages.NewErrorMessage(err)
	status := msg.StatusCode()
	if status >= http.StatusInternalServerError {
		s.logger.Error("SCIM request failed", zap.Error(err))
	} else {
		s.logger.Debug("SCIM request rejected", zap.Error(err))
	}
	s.respond(c, status, msg)
}

func queryParams(c *gin.Context) (*resources.Params, error) {
	query := map[string]string{}
	for _, key := range []string{"filter", "attributes", "excludedAttributes", "sortBy", "sortOrder", "startIndex", "count"} {
		if value := c.Query(key); value != "" {
			query[key] = value
		}
	}
	return resources.ParseParams(query)
}

func (s *Server) handleQuery(typeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := queryParams(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		response, err := s.service.Query(c.Request.Context(), typeName, params)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.respond(c, http.StatusOK, response)
	}
}

func (s *Server) handleRead(typeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		params, err := queryParams(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		record, err := s.service.Read(c.Request.Context(), typeName, c.Param("id"), params)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.respond(c, http.StatusOK, record)
	}
}

func (s *Server) handleCreate(typeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := decodeBody(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		record, err := s.service.Create(c.Request.Context(), typeName, body)
		if err != nil {
			s.fail(c, err)
			return
		}
		if meta, ok := record["meta"].(map[string]any); ok {
			if location, ok := meta["location"].(string); ok {
				c.Header("Location", location)
			}
		}
		s.respond(c, http.StatusCreated, record)
	}
}

func (s *Server) handleReplace(typeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := decodeBody(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		record, err := s.service.Replace(c.Request.Context(), typeName, c.Param("id"), body)
		if err != nil {
			s.fail(c, err)
			return
		}
		s.respond(c, http.StatusOK, record)
	}
}

func (s *Server) handlePatch(typeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.provider.Patch.Supported {
			s.fail(c, scim.NewError(http.StatusNotImplemented, "", "patch is not supported by this service provider"))
			return
		}
		body, err := decodeBody(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		record, err := s.service.Patch(c.Request.Context(), typeName, c.Param("id"), body)
		if err != nil {
			s.fail(c, err)
			return
		}
		if record == nil {
			c.Status(http.StatusNoContent)
			return
		}
		s.respond(c, http.StatusOK, record)
	}
}

func (s *Server) handleDelete(typeName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.service.Delete(c.Request.Context(), typeName, c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func decodeBody(c *gin.Context) (map[string]any, error) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, scim.InvalidSyntax("request body is not valid JSON")
	}
	return body, nil
}

// ============================================================
// Discovery Endpoints
// ============================================================

func (s *Server) handleServiceProviderConfig(c *gin.Context) {
	s.respond(c, http.StatusOK, s.provider.Document(s.baseURL))
}

func (s *Server) handleResourceTypes(c *gin.Context) {
	basepath := s.baseURL + "/ResourceTypes"
	docs := make([]map[string]any, 0)
	for _, decl := range s.registry.ResourceTypes() {
		docs = append(docs, decl.Describe(basepath))
	}
	s.respond(c, http.StatusOK, listEnvelope(docs))
}

func (s *Server) handleSchemas(c *gin.Context) {
	basepath := s.baseURL + "/Schemas"
	docs := make([]map[string]any, 0)
	for _, definition := range s.registry.Schemas() {
		docs = append(docs, definition.Describe(basepath))
	}
	s.respond(c, http.StatusOK, listEnvelope(docs))
}

func listEnvelope(docs []map[string]any) *messages.ListResponse {
	return &messages.ListResponse{
		Schemas:      []string{messages.ListResponseURN},
		TotalResults: len(docs),
		Resources:    docs,
		StartIndex:   1,
		ItemsPerPage: len(docs),
	}
}
