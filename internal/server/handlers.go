package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/offerdesk/pricebook/internal/catalog"
	"github.com/offerdesk/pricebook/internal/ingest"
	"github.com/offerdesk/pricebook/internal/models"
	"github.com/offerdesk/pricebook/internal/storage"
)

func (s *Server) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	q := models.ItemQuery{
		Query:  r.URL.Query().Get("q"),
		Source: r.URL.Query().Get("source"),
		Role:   r.URL.Query().Get("role"),
		Filters: models.ItemFilters{
			Make:        splitParam(r.URL.Query().Get("make")),
			Approvals:   splitParam(r.URL.Query().Get("approvals")),
			Model:       splitParam(r.URL.Query().Get("model")),
			ProductType: splitParam(r.URL.Query().Get("product_type")),
		},
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	s.logger.Debug("item search request",
		zap.String("query", q.Query), zap.String("source", q.Source))
	s.respondJSON(w, http.StatusOK, s.engine.SearchItems(q))
}

func (s *Server) handleSearchClients(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := s.engine.SearchClients(r.Context(), query)
	if err != nil {
		s.logger.Error("client search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	options, err := s.manager.FilterOptions()
	if err != nil {
		s.logger.Error("filter options failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, options)
}

func (s *Server) handleSheetNames(w http.ResponseWriter, r *http.Request) {
	names := s.manager.Store().SheetNames()
	if names == nil {
		names = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sheet_names": names})
}

func (s *Server) handleMatchUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("sheet")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing sheet file")
		return
	}
	defer file.Close()

	useForeign := formBool(r, "use_foreign", true)
	useLocal := formBool(r, "use_local", true)

	s.logger.Debug("upload match request",
		zap.String("filename", header.Filename),
		zap.Bool("use_foreign", useForeign),
		zap.Bool("use_local", useLocal))

	result, err := s.matcher.MatchUpload(r.Context(), file, header.Filename, useForeign, useLocal)
	if err != nil {
		if errors.Is(err, ingest.ErrNoSource) || errors.Is(err, ingest.ErrEmptyUpload) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("upload match failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("catalog")
	s.logger.Info("rebuild requested", zap.String("catalog", name))

	var err error
	if name != "" {
		err = s.manager.Rebuild(r.Context(), name)
	} else {
		err = s.manager.RebuildAll(r.Context())
	}
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownCatalog) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "rebuilt",
		"catalogs": s.manager.Status(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"catalogs":         s.manager.Status(),
		"disk_usage_bytes": storage.DiskUsageBytes(s.config.Storage.DatabasePath),
		"config": map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"markup_rate":          s.config.Catalog.MarkupRate,
			"match_threshold":      s.config.Match.Threshold,
			"database_path":        s.config.Storage.DatabasePath,
		},
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitParam parses a comma-separated query parameter into trimmed values.
func splitParam(s string) []string {
	if s == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func formBool(r *http.Request, name string, def bool) bool {
	value := r.FormValue(name)
	if value == "" {
		return def
	}
	return strings.EqualFold(value, "true")
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
