package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"rsc.io/pdf"

	"nimbuschat/backend/internal/store"
)

const (
	maxUploadBytes           = 25 * 1024 * 1024
	maxMultipartRequestBytes = maxUploadBytes + (1 * 1024 * 1024)
	maxExtractedTextRunes    = 200_000
	defaultUploadPrefix      = "chat-uploads"
)

var (
	errUnsupportedFileType = errors.New("unsupported file type")

	supportedUploadExtensions = map[string]struct{}{
		".txt":  {},
		".md":   {},
		".pdf":  {},
		".csv":  {},
		".json": {},
	}

	filenameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// fileObjectStore owns both the blob storage and the key layout, so every
// backend scopes attachment keys to their owning user the same way.
type fileObjectStore interface {
	Backend() string
	ObjectKey(userID, fileID, filename string) string
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	DeleteObject(ctx context.Context, key string) error
}

func userScopedKey(prefix, userID, fileID, filename string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultUploadPrefix
	}
	return path.Join(prefix, "users", userID, fileID, filename)
}

type uploadedFileResponse struct {
	File          store.File `json:"file"`
	ExtractedText string     `json:"extractedText"`
}

// UploadFile stores an attachment object under a user-scoped key and records
// the file row. The extracted text is returned so the caller can fold it
// into the next prompt.
func (h Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())
	if h.files == nil {
		writeError(w, http.StatusServiceUnavailable, "attachments_unconfigured", "attachments storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartRequestBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file size exceeds 25 MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "request must be multipart/form-data")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeError(w, http.StatusBadRequest, "invalid_request", "file field is required")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	defer file.Close()

	messageID := strings.TrimSpace(r.FormValue("messageId"))
	if messageID != "" {
		message, err := h.store.GetMessageByID(r.Context(), messageID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && message.UserID != user.ID) {
			writeError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "db_error", "failed to read message")
			return
		}
	}

	filename := sanitizeFilename(header.Filename)
	extension := strings.ToLower(filepath.Ext(filename))
	if _, supported := supportedUploadExtensions[extension]; !supported {
		writeError(w, http.StatusBadRequest, "unsupported_file_type", "supported file types: .txt, .md, .pdf, .csv, .json")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read uploaded file")
		return
	}
	if int64(len(data)) > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file size exceeds 25 MB")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "empty files are not allowed")
		return
	}

	extractedText, err := extractUploadedText(extension, data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_extraction_failed", "failed to extract text from attachment")
		return
	}
	extractedText = trimToRunes(extractedText, maxExtractedTextRunes)

	mediaType := detectUploadMediaType(header.Header.Get("Content-Type"), extension, data)
	key := h.files.ObjectKey(user.ID, uuid.NewString(), filename)

	if err := h.files.PutObject(r.Context(), key, mediaType, data); err != nil {
		log.Printf("upload attachment object failed: user_id=%s key=%s err=%v", user.ID, key, err)
		writeError(w, http.StatusBadGateway, "storage_error", "failed to store attachment")
		return
	}

	record, err := h.store.CreateFile(r.Context(), key, user.ID, messageID, store.FileRoleUser)
	if err != nil {
		log.Printf("persist attachment metadata failed: user_id=%s key=%s err=%v", user.ID, key, err)
		_ = h.files.DeleteObject(r.Context(), key)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to save file metadata")
		return
	}

	writeJSON(w, http.StatusCreated, uploadedFileResponse{File: record, ExtractedText: extractedText})
}

func (h Handler) ListUserFiles(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())

	files, err := h.store.ListFilesByUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h Handler) ListMessageFiles(w http.ResponseWriter, r *http.Request) {
	message, ok := h.readableMessage(w, r)
	if !ok {
		return
	}

	files, err := h.store.ListFilesByMessage(r.Context(), message.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to list files")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	user, _ := requestUserFromContext(r.Context())
	fileID := chi.URLParam(r, "fileID")

	file, err := h.fileOwnedBy(r.Context(), fileID, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read file")
		return
	}

	if err := h.store.DeleteFile(r.Context(), file.ID, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to delete file")
		return
	}
	if h.files != nil {
		if err := h.files.DeleteObject(r.Context(), file.Key); err != nil {
			log.Printf("delete attachment blob failed: user_id=%s key=%s err=%v", user.ID, file.Key, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h Handler) fileOwnedBy(ctx context.Context, fileID, userID string) (store.File, error) {
	files, err := h.store.ListFilesByUser(ctx, userID)
	if err != nil {
		return store.File{}, err
	}
	for _, file := range files {
		if file.ID == fileID {
			return file, nil
		}
	}
	return store.File{}, store.ErrNotFound
}

func extractUploadedText(extension string, data []byte) (string, error) {
	switch extension {
	case ".txt", ".md", ".csv":
		return normalizeTextPayload(string(data)), nil
	case ".json":
		if !json.Valid(data) {
			return "", errors.New("invalid json")
		}
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, data, "", "  "); err != nil {
			return "", err
		}
		return normalizeTextPayload(pretty.String()), nil
	case ".pdf":
		text, err := extractPDFText(data)
		if err != nil {
			return "", err
		}
		return normalizeTextPayload(text), nil
	default:
		return "", errUnsupportedFileType
	}
}

func extractPDFText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var textBuilder strings.Builder
	runeCount := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content := page.Content()
		for _, item := range content.Text {
			chunk := strings.TrimSpace(item.S)
			if chunk == "" {
				continue
			}
			if textBuilder.Len() > 0 {
				textBuilder.WriteByte('\n')
				runeCount++
			}
			textBuilder.WriteString(chunk)
			runeCount += utf8.RuneCountInString(chunk)
			if runeCount >= maxExtractedTextRunes {
				return trimToRunes(textBuilder.String(), maxExtractedTextRunes), nil
			}
		}
	}

	return textBuilder.String(), nil
}

func normalizeTextPayload(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ToValidUTF8(normalized, "")
	return strings.TrimSpace(normalized)
}

func detectUploadMediaType(headerContentType, extension string, data []byte) string {
	contentType := strings.TrimSpace(headerContentType)
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	if byExt := strings.TrimSpace(mime.TypeByExtension(extension)); byExt != "" {
		return byExt
	}

	if len(data) > 0 {
		sniffLen := len(data)
		if sniffLen > 512 {
			sniffLen = 512
		}
		return http.DetectContentType(data[:sniffLen])
	}

	return "application/octet-stream"
}

func sanitizeFilename(raw string) string {
	base := strings.TrimSpace(filepath.Base(raw))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "file"
	}

	extension := filepath.Ext(base)
	namePart := strings.TrimSuffix(base, extension)
	namePart = filenameSanitizer.ReplaceAllString(namePart, "_")
	namePart = strings.Trim(namePart, "._")
	if namePart == "" {
		namePart = "file"
	}

	extension = strings.ToLower(extension)
	extension = filenameSanitizer.ReplaceAllString(extension, "")
	if extension != "" && !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}

	candidate := namePart + extension
	candidate = trimToRunes(candidate, 180)
	if strings.TrimSpace(candidate) == "" {
		return "file"
	}
	return candidate
}

func trimToRunes(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}
