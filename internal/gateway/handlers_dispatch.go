package gateway

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"

	"wagate/internal/services/session"
	logx "wagate/pkg/logx"
)

const maxUploadMemory = 32 << 20

type errorResponse struct {
	Error string `json:"error"`
}

const notReadyMsg = "session is not connected; scan the QR code first"

// parseRecipients pulls the `numbers` form field (a JSON-encoded array of
// address strings) out of the request. An unparsable field is a request
// validation error, reported before any send is attempted.
func parseRecipients(r *http.Request) ([]string, bool) {
	var numbers []string
	if err := json.Unmarshal([]byte(r.FormValue("numbers")), &numbers); err != nil {
		return nil, false
	}
	return numbers, true
}

func (s *Server) handleSendBulk(w http.ResponseWriter, r *http.Request) {
	if err := parseAnyForm(r); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
		return
	}
	numbers, ok := parseRecipients(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid numbers format"})
		return
	}
	message := r.FormValue("message")

	results, err := s.engine.SendText(r.Context(), numbers, message)
	if err != nil {
		if errors.Is(err, session.ErrNotReady) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: notReadyMsg})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleSendBulkMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "expected multipart form data"})
		return
	}
	numbers, ok := parseRecipients(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid numbers format"})
		return
	}
	caption := r.FormValue("message")

	file, header, err := formFile(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no file attached"})
		return
	}
	defer file.Close()

	media, err := s.uploads.Stage(header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		s.log.Error("upload staging failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to store upload"})
		return
	}

	results, err := s.engine.SendMedia(r.Context(), numbers, media, caption)
	if err != nil {
		// The engine only touches the staged file once dispatch actually
		// runs; on a refused dispatch the gateway cleans up.
		s.uploads.Discard(media)
		if errors.Is(err, session.ErrNotReady) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: notReadyMsg})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// formFile returns the uploaded file: the conventional `file` field when
// present, otherwise the first file part in the form.
func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if f, h, err := r.FormFile("file"); err == nil {
		return f, h, nil
	}
	if r.MultipartForm != nil {
		for _, headers := range r.MultipartForm.File {
			if len(headers) > 0 {
				f, err := headers[0].Open()
				if err != nil {
					return nil, nil, err
				}
				return f, headers[0], nil
			}
		}
	}
	return nil, nil, http.ErrMissingFile
}

// parseAnyForm accepts both urlencoded and multipart bodies for the text
// dispatch endpoint.
func parseAnyForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxUploadMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}
