package http

import (
	"net/http"

	"github.com/artpar/modgate/config"
	"github.com/artpar/modgate/core/module"
	"github.com/go-chi/cors"
)

var allMethods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}

// openPolicy is used when neither the route nor its router declares one.
func openPolicy(cfg config.CORSConfig) module.CORSPolicy {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"*"}
	}
	return module.CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: allMethods,
		AllowedHeaders: headers,
	}
}

// resolvePolicy picks the route policy, then the router policy, then the open
// default.
func resolvePolicy(route, router *module.CORSPolicy, cfg config.CORSConfig) module.CORSPolicy {
	switch {
	case route != nil:
		return *route
	case router != nil:
		return *router
	}
	return openPolicy(cfg)
}

// corsMiddleware translates a policy into go-chi/cors options.
func corsMiddleware(p module.CORSPolicy) func(http.Handler) http.Handler {
	methods := p.AllowedMethods
	if len(methods) == 0 {
		methods = allMethods
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   p.AllowedOrigins,
		AllowedMethods:   methods,
		AllowedHeaders:   p.AllowedHeaders,
		ExposedHeaders:   p.ExposedHeaders,
		AllowCredentials: p.AllowCredentials,
		MaxAge:           p.MaxAge,
	})
}
