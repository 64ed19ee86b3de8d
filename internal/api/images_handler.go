package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/picvault/picvault/pkg/picvault"
)

const multipartMemoryLimit = 10 << 20

type jsonUploadRequest struct {
	Filename string `json:"filename"`
	File     string `json:"file"` // base64 payload
}

// handleUpload accepts either a multipart form with an "image" field or a
// JSON body carrying a base64 payload.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	owner, err := h.currentUser(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	req := picvault.UploadRequest{Owner: owner, Size: -1}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
			renderJSONError(w, r, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			renderJSONError(w, r, http.StatusBadRequest, "no file uploaded")
			return
		}
		defer file.Close()

		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Size = header.Size
		req.Body = file
	} else {
		var body jsonUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			renderJSONError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Filename == "" || body.File == "" {
			renderJSONError(w, r, http.StatusBadRequest, "filename and file required")
			return
		}
		data, err := base64.StdEncoding.DecodeString(body.File)
		if err != nil {
			renderJSONError(w, r, http.StatusBadRequest, "file must be base64 encoded")
			return
		}
		req.Filename = body.Filename
		req.Size = int64(len(data))
		req.Body = bytes.NewReader(data)
	}

	image, err := h.service.Upload(r.Context(), req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"message": "file uploaded", "key": image.Key})
}

func (h *Handler) handleListImages(w http.ResponseWriter, r *http.Request) {
	owner, err := h.currentUser(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	images, err := h.service.List(r.Context(), owner)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, images)
}

func (h *Handler) handleImageURL(w http.ResponseWriter, r *http.Request) {
	owner, err := h.currentUser(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	key := chi.URLParam(r, "*")

	url, err := h.service.GetDownloadURL(r.Context(), owner, key)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"url": url})
}

func (h *Handler) handleViewToken(w http.ResponseWriter, r *http.Request) {
	owner, err := h.currentUser(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	key := chi.URLParam(r, "*")

	token, err := h.auth.IssueViewToken(owner, key)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"token": token})
}

// handleView streams object bytes to unauthenticated clients holding a
// valid view token. The copy is bounded by the request context: client
// disconnects cancel the object store read.
func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")

	if err := h.auth.VerifyViewToken(r.URL.Query().Get("token"), key); err != nil {
		h.renderError(w, r, err)
		return
	}

	// The token is bound to the key, so the owner named in the key
	// prefix is by construction the one who minted it.
	owner, err := ownerOf(key)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	body, contentType, err := h.service.Download(r.Context(), owner, key)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("view stream interrupted", "key", key, "err", err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, err := h.currentUser(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	key := chi.URLParam(r, "*")

	if err := h.service.Delete(r.Context(), owner, key); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"message": "deleted", "key": key})
}
