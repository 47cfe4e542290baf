package server

import "net/http"

// HttpHandler is a route of the server.
type HttpHandler struct {
	Name    string
	Handler http.Handler
}
