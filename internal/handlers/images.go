package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-telemed/internal/blob"
	"github.com/iyunix/go-telemed/internal/domain"
)

const multipartMemory = 8 << 20

// UploadImage accepts multipart form data with an "image" file and an
// optional "metadata" JSON field. The binary goes to the blob store; the
// document only keeps its key.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.writeStoreError(w, "UploadImage", err, "")
		return
	}

	var img domain.ImageAnalysis
	if meta := r.FormValue("metadata"); meta != "" {
		if err := domain.DecodeStrict(domain.CollectionImageAnalyses, []byte(meta), &img); err != nil {
			h.writeStoreError(w, "UploadImage", err, "")
			return
		}
	}
	if img.ImageID == "" {
		img.ImageID = domain.NewID()
	}
	if img.PatientID == "" {
		img.PatientID = r.FormValue("patientId")
	}
	img.FileName = header.Filename
	img.FileSize = int64(len(data))
	img.FileType = header.Header.Get("Content-Type")
	img.UploadedAt = h.now()
	img.BlobKey = domain.BlobKeyFor(img.PatientID, img.ImageID)
	img.ImageData = nil
	if err := img.Validate(); err != nil {
		h.writeStoreError(w, "UploadImage", err, "")
		return
	}

	if _, err := h.blobs.Put(r.Context(), img.BlobKey, img.FileType, data); err != nil {
		h.writeStoreError(w, "UploadImage", err, "")
		return
	}
	if err := h.store.Insert(r.Context(), img); err != nil {
		if derr := h.blobs.Delete(r.Context(), img.BlobKey); derr != nil && !errors.Is(derr, blob.ErrNotFound) {
			h.log.Warn("[ImageHandler] orphaned blob", "key", img.BlobKey, "error", derr)
		}
		h.writeStoreError(w, "UploadImage", err, "")
		return
	}
	h.log.Info("[ImageHandler] image stored", "imageId", img.ImageID, "size", img.FileSize)
	writeData(w, http.StatusCreated, img)
}

// ListImages returns image metadata for a patient. Binaries are never included.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListByPatient(r.Context(), domain.CollectionImageAnalyses, mux.Vars(r)["id"], 0)
	if err != nil {
		h.writeStoreError(w, "ListImages", err, "")
		return
	}
	out := make([]domain.ImageAnalysis, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.(domain.ImageAnalysis).WithoutBinary())
	}
	writeData(w, http.StatusOK, out)
}

// GetImageData streams the stored binary for an image.
func (h *Handler) GetImageData(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), domain.CollectionImageAnalyses, mux.Vars(r)["id"])
	if err != nil {
		h.writeStoreError(w, "GetImageData", err, "Image not found")
		return
	}
	img := rec.(domain.ImageAnalysis)
	info, data, err := h.blobs.Get(r.Context(), img.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, "Image data not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeStoreError(w, "GetImageData", err, "")
		return
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
