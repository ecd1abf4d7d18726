package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meschain/webhook-gateway/internal/interfaces/http/middleware"
)

// apiPrefix is where every versioned endpoint lives.
const apiPrefix = "/api/v1"

// route is one endpoint of the versioned API. A non-empty role is checked
// against the operator token claims before handler runs.
type route struct {
	method  string
	path    string
	role    string
	handler gin.HandlerFunc
}

// routeGroup mounts routes under apiPrefix+prefix behind shared middleware.
type routeGroup struct {
	prefix string
	use    []gin.HandlerFunc
	routes []route
}

func (g routeGroup) mount(api *gin.RouterGroup) {
	rg := api.Group(g.prefix, g.use...)
	for _, r := range g.routes {
		chain := make([]gin.HandlerFunc, 0, 2)
		if r.role != "" {
			chain = append(chain, middleware.RequireRole(r.role))
		}
		rg.Handle(r.method, r.path, append(chain, r.handler)...)
	}
}

func mountAll(engine *gin.Engine, groups ...routeGroup) {
	api := engine.Group(apiPrefix)
	for _, g := range groups {
		g.mount(api)
	}
}

func get(path, role string, h gin.HandlerFunc) route {
	return route{method: http.MethodGet, path: path, role: role, handler: h}
}

func post(path, role string, h gin.HandlerFunc) route {
	return route{method: http.MethodPost, path: path, role: role, handler: h}
}
