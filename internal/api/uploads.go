package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/starford/tera/internal/imagedata"
	"github.com/starford/tera/internal/models"
	"github.com/starford/tera/internal/sectorfile"
)

const (
	maxUploadBytes = imagedata.MaxSize + 1<<20 // multipart overhead
	maxImportBytes = models.FunctionCount * maxBodyBytes
)

// readUpload returns the content of the multipart field "file".
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return nil, false
	}
	return data, true
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mt, "multipart/")
}

// UploadSectorImage handles POST /api/map/sectors/{fid}/image/upload
// (multipart/form-data, field "file"). The file is sniffed and stored as a
// data URI.
//
//	@Summary		Upload a sector image file
//	@Tags			sectors
//	@Accept			mpfd
//	@Produce		json
//	@Param			fid		path		int		true	"Function id"
//	@Param			file	formData	file	true	"Image file"
//	@Success		200		{object}	MapResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/map/sectors/{fid}/image/upload [post]
func (h *Handler) UploadSectorImage(w http.ResponseWriter, r *http.Request) {
	fid, ok := functionID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("function id must be an integer"))
		return
	}
	data, ok := readUpload(w, r, maxUploadBytes)
	if !ok {
		return
	}
	payload, err := imagedata.FromBytes(data)
	if err != nil {
		writeServiceError(w, "upload sector image", err)
		return
	}
	res, err := h.sess.SetSectorImage(r.Context(), ifMatch(r), fid, payload)
	if err != nil {
		writeServiceError(w, "upload sector image", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}

// ExportSectorImages handles GET /api/map/sector-images/export and serves
// the exchange file as a download.
func (h *Handler) ExportSectorImages(w http.ResponseWriter, _ *http.Request) {
	data, err := h.sess.ExportSectorImages()
	if err != nil {
		writeServiceError(w, "export sector images", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sectorfile.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportSectorImages handles POST /api/map/sector-images/import. The file
// is either the raw JSON body or the multipart field "file".
//
//	@Summary		Replace all sector images from an exchange file
//	@Tags			sectors
//	@Accept			json,mpfd
//	@Produce		json
//	@Success		200	{object}	MapResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/map/sector-images/import [post]
func (h *Handler) ImportSectorImages(w http.ResponseWriter, r *http.Request) {
	var data []byte
	if isMultipart(r) {
		var ok bool
		if data, ok = readUpload(w, r, maxImportBytes); !ok {
			return
		}
	} else {
		var err error
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
		if data, err = io.ReadAll(r.Body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
			return
		}
	}
	res, err := h.sess.ImportSectorImages(r.Context(), ifMatch(r), data)
	if err != nil {
		writeServiceError(w, "import sector images", err)
		return
	}
	writeResult(w, http.StatusOK, res)
}
