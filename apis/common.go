package apis

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gorilla/mux"
)

// Write logging support
func (h APIRestTruthStateHandler) Write(p []byte) (n int, err error) {
	log.WithFields(h.LogTags).Infof("%s", p)
	return len(p), nil
}

// RegisterPathPrefix registers a new method handler for an end-point
func RegisterPathPrefix(
	parentRouter *mux.Router, pathPrefix string, methodHandlers map[string]http.HandlerFunc,
) *mux.Router {
	router := parentRouter.PathPrefix(pathPrefix).Subrouter()
	for method, handler := range methodHandlers {
		router.Methods(method).Path("").HandlerFunc(handler)
	}
	return router
}
