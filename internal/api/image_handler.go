package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/cheahjs/sdwebui-panel/internal/storage"
)

func (router *Router) imageHandler(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	f, err := router.images.Open(filename)
	if errors.Is(err, storage.ErrImageNotFound) {
		http.Error(w, "Image not found", http.StatusNotFound)
		return
	} else if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to open image")
		http.Error(w, "Failed to retrieve image", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to stat image")
		http.Error(w, "Failed to retrieve image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
