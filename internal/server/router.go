// Package server exposes the operation catalog over HTTP for harnesses that
// prefer a resident endpoint to per-call process spawns.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/appctl/internal/apperr"
	"github.com/loykin/appctl/internal/dispatch"
)

// Dispatcher runs one named operation. *appctl.Engine satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]any) dispatch.Response
}

// Router provides embeddable HTTP handlers over a Dispatcher.
// Endpoints:
//
//	GET  {basePath}/operations        catalog listing
//	POST {basePath}/operations/:name  body: JSON argument object (optional)
//
// The response body is always the operation's JSON envelope.
type Router struct {
	engine   Dispatcher
	basePath string
}

// NewRouter constructs a Router with a configurable basePath, e.g. "/api".
func NewRouter(engine Dispatcher, basePath string) *Router {
	return &Router{engine: engine, basePath: sanitizeBase(basePath)}
}

// Handler returns a gin-powered http.Handler that can be mounted in any mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/operations", r.handleList)
	group.POST("/operations/:name", r.handleDispatch)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, engine Dispatcher) (*http.Server, error) {
	r := NewRouter(engine, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

func (r *Router) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, dispatch.Catalog())
}

func (r *Router) handleDispatch(c *gin.Context) {
	name := c.Param("name")
	args := map[string]any{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			resp := dispatch.Response{OK: false, Error: &dispatch.ErrorObj{
				Code:    string(apperr.InvalidArguments),
				Message: "body must be a JSON object: " + err.Error(),
			}}
			c.JSON(http.StatusBadRequest, resp)
			return
		}
	}
	resp := r.engine.Dispatch(c.Request.Context(), name, args)
	c.JSON(statusFor(resp), resp)
}

// statusFor maps the envelope's error code onto an HTTP status. The envelope
// itself is the contract; the status is a convenience for plain HTTP clients.
func statusFor(resp dispatch.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	switch apperr.Code(resp.Error.Code) {
	case apperr.InvalidArguments:
		return http.StatusBadRequest
	case apperr.IpcCommandNotFound, apperr.WindowNotFound:
		return http.StatusNotFound
	case apperr.OperationTimedOut:
		return http.StatusGatewayTimeout
	case apperr.RegistryBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeBase(base string) string {
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimRight(base, "/")
}
