package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func NewRouter(playlistHandler, streamHandler http.Handler) *mux.Router {
	router := mux.NewRouter().UseEncodedPath()
	router.Handle("/", playlistHandler).Methods(http.MethodGet)
	router.Handle("/{channel}", streamHandler).Methods(http.MethodGet)
	return router
}
