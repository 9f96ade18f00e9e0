// Package adminhttp exposes a single read-only introspection endpoint over
// HTTP for operators: which plugins are loaded. It is the sole retained use
// of gin-gonic/gin from the teacher's stack — every other teacher HTTP
// surface (auth, quota, sessions, nodes) has no analogue in a scripting
// runtime and was dropped (see DESIGN.md).
package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Engine is the subset of the Plugin Engine the debug endpoint reads.
type Engine interface {
	Names() []string
}

// Server serves GET /debug/plugins, listing currently loaded plugin names.
type Server struct {
	router *gin.Engine
}

// New builds the admin HTTP server bound to engine.
func New(engine Engine) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/debug/plugins", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"plugins": engine.Names()})
	})
	return &Server{router: r}
}

// Run starts the HTTP server on addr; blocks until it exits or errors.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
