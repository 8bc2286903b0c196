package ingest

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/ziadkadry99/compound-rag/internal/api"
	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/config"
)

// RegisterRoutes mounts upload, status, watch and re-index endpoints.
func RegisterRoutes(r chi.Router, p *Pipeline, maxUploadBytes int64) {
	r.Post("/api/documents", uploadHandler(p, maxUploadBytes))
	r.Get("/api/documents/{documentID}/status", statusHandler(p))
	r.Get("/api/documents/{documentID}/watch", watchHandler(p))
	r.Post("/api/documents/{documentID}/reindex", reindexHandler(p))
}

// StatusView is the indexer status of one document.
type StatusView struct {
	DocumentID   string         `json:"document_id"`
	IndexerName  string         `json:"indexer_name"`
	Status       catalog.Status `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Attempt      int            `json:"attempt"`
	ChunkCount   int            `json:"chunk_count"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func statusView(d *catalog.Document) StatusView {
	return StatusView{
		DocumentID:   d.ID,
		IndexerName:  d.IndexerName,
		Status:       d.Status,
		ErrorMessage: d.ErrorMessage,
		Attempt:      d.Attempt,
		ChunkCount:   d.ChunkCount,
		UpdatedAt:    d.UpdatedAt,
	}
}

func uploadHandler(p *Pipeline, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		if maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				api.Error(w, r, apperr.Validation(apperr.CodeInvalidRequest, "upload exceeds %d bytes", tooLarge.Limit))
				return
			}
			api.Error(w, r, apperr.Validation(apperr.CodeInvalidRequest, "invalid multipart form: %v", err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			api.Error(w, r, apperr.Validation(apperr.CodeInvalidRequest, "form field \"file\" is required"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			api.Error(w, r, apperr.Validation(apperr.CodeInvalidRequest, "reading upload: %v", err))
			return
		}

		res, err := p.Ingest(r.Context(), Request{
			CompoundID: compoundID,
			FileName:   header.Filename,
			Title:      r.FormValue("title"),
			Data:       data,
			Policy:     config.DuplicatePolicy(r.FormValue("duplicate_policy")),
		})
		if err != nil {
			api.Error(w, r, err)
			return
		}
		status := http.StatusAccepted
		if res.Duplicate {
			status = http.StatusOK
		}
		api.JSON(w, status, res)
	}
}

func statusHandler(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		doc, err := p.Status(r.Context(), compoundID, chi.URLParam(r, "documentID"))
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusOK, statusView(doc))
	}
}

func reindexHandler(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID, err := api.CompoundID(r)
		if err != nil {
			api.Error(w, r, err)
			return
		}
		doc, err := p.Reindex(r.Context(), compoundID, chi.URLParam(r, "documentID"))
		if err != nil {
			api.Error(w, r, err)
			return
		}
		api.JSON(w, http.StatusAccepted, statusView(doc))
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watchHandler streams StatusView messages until the document reaches a
// terminal status. Browsers cannot set headers on a websocket handshake, so
// the compound may also be passed as ?compound_id=.
func watchHandler(p *Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		compoundID := r.URL.Query().Get("compound_id")
		if compoundID == "" {
			var err error
			if compoundID, err = api.CompoundID(r); err != nil {
				api.Error(w, r, err)
				return
			}
		}
		id := chi.URLParam(r, "documentID")
		doc, err := p.Status(r.Context(), compoundID, id)
		if err != nil {
			api.Error(w, r, err)
			return
		}

		updates, cancel := p.Subscribe(id)
		defer cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade")
			return
		}
		defer conn.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(p.opts.PollInterval)
		defer ticker.Stop()

		last := statusView(doc)
		if err := conn.WriteJSON(last); err != nil {
			return
		}
		for !last.Status.Terminal() {
			select {
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case d := <-updates:
				doc = &d
			case <-ticker.C:
				if doc, err = p.Status(r.Context(), compoundID, id); err != nil {
					return
				}
			}
			next := statusView(doc)
			if next.Status == last.Status && next.Attempt == last.Attempt {
				continue
			}
			last = next
			if err := conn.WriteJSON(last); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.Status)))
	}
}
