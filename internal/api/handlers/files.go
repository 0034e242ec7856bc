// files.go — HTTP handlers файловых операций Imagery.
// Upload (POST /upload) и Serve (GET /{file}).
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/imagery/internal/api/errors"
	"github.com/arturkryukov/imagery/internal/api/middleware"
	"github.com/arturkryukov/imagery/internal/service"
)

// multipartMemoryLimit — буфер парсинга multipart form в памяти,
// остальное уходит во временные файлы.
const multipartMemoryLimit = 32 << 20 // 32 MB

// uploadResponse — тело успешного ответа на загрузку.
type uploadResponse struct {
	Data lookupResult `json:"data"`
}

// lookupResult — публичный URL загруженного файла.
type lookupResult struct {
	URL string `json:"url"`
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	downloadSvc *service.DownloadService
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(uploadSvc *service.UploadService, downloadSvc *service.DownloadService) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		downloadSvc: downloadSvc,
	}
}

// Upload обрабатывает POST /upload.
// Multipart form: file (обязательно). Владелец берётся из контекста
// запроса, если авторизация включена. Ответ:
// {"data": {"url": "<baseUrl>/<storedFileName>"}}.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	// Атрибуция: имя пользователя из авторизационного контекста
	var owner string
	if user := middleware.UserFromContext(r.Context()); user != nil {
		owner = user.Username
	}

	result, uploadErr := h.uploadSvc.Upload(service.UploadParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		Size:             header.Size,
		Owner:            owner,
	})
	if uploadErr != nil {
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Data: lookupResult{URL: result.URL},
	})
}

// Serve обрабатывает GET /{file}.
// Имя файла из URL — это {id}{ext}, под которым файл хранится на диске.
func (h *FilesHandler) Serve(w http.ResponseWriter, r *http.Request) {
	storedName := chi.URLParam(r, "file")

	if serveErr := h.downloadSvc.Serve(w, r, storedName); serveErr != nil {
		apierrors.WriteError(w, serveErr.StatusCode, serveErr.Code, serveErr.Message)
	}
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
