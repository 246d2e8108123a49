package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/boostcache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/params"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/logger"
)

type Searcher interface {
	Search(ctx context.Context, req params.Params) (*executor.SearchResult, bool, error)
}

// Index is the index administration surface.
type Index interface {
	Flush() error
	Stats() indexer.EngineStats
}

// Dictionaries reports the cached field terms dictionaries.
type Dictionaries interface {
	Generation() uint64
	Sizes() map[string]int
}

type Handler struct {
	searcher     Searcher
	index        Index
	results      *cache.QueryCache
	boostCaches  *boostcache.Coordinator
	dictionaries Dictionaries
	logger       *slog.Logger
}

// New returns a Handler. results, boostCaches and dictionaries may be nil.
func New(s Searcher, idx Index, results *cache.QueryCache, boostCaches *boostcache.Coordinator, dictionaries Dictionaries) *Handler {
	return &Handler{
		searcher:     s,
		index:        idx,
		results:      results,
		boostCaches:  boostCaches,
		dictionaries: dictionaries,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// CacheHeader reports whether a search was served from the result cache.
const CacheHeader = "X-Cache"

// Search handles GET /api/v1/search. Every query string parameter is a
// request parameter.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req := params.FromValues(r.URL.Query())
	result, cacheHit, err := h.searcher.Search(ctx, req)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "q", req.Get(params.Q), "error", err)
		} else {
			log.Info("search rejected", "q", req.Get(params.Q), "error", err)
		}
		h.writeJSON(w, status, apperrors.NewResponse(err, "search failed", logger.RequestID(ctx)))
		return
	}

	log.Info("search completed",
		"q", req.Get(params.Q),
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"generation", result.Generation,
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	if cacheHit {
		w.Header().Set(CacheHeader, "HIT")
	} else {
		w.Header().Set(CacheHeader, "MISS")
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Flush handles POST /api/v1/index/flush.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Flush(); err != nil {
		logger.FromContext(r.Context()).Error("flush failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "flush failed")
		return
	}
	h.writeJSON(w, http.StatusOK, h.index.Stats())
}

// IndexStats handles GET /api/v1/index/stats.
func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	st := h.index.Stats()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"stats":       st,
		"buffer_size": humanize.Bytes(uint64(st.BufferBytes)),
	})
}

type regionStats struct {
	Entries []boostcache.EntryStats `json:"entries"`
	Bytes   int64                   `json:"bytes"`
	Size    string                  `json:"size"`
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}

	if h.results != nil {
		hits, misses, state := h.results.Stats()
		total := hits + misses
		var hitRate float64
		if total > 0 {
			hitRate = float64(hits) / float64(total) * 100
		}
		out["results"] = map[string]any{
			"hits":     hits,
			"misses":   misses,
			"total":    total,
			"hit_rate": humanize.FtoaWithDigits(hitRate, 1) + "%",
			"breaker":  state,
		}
	} else {
		out["results"] = map[string]string{"status": "disabled"}
	}

	if h.boostCaches != nil {
		regions := map[string]regionStats{}
		for name, entries := range h.boostCaches.Stats() {
			var bytes int64
			for _, e := range entries {
				bytes += e.Cache.Bytes
			}
			regions[name] = regionStats{Entries: entries, Bytes: bytes, Size: humanize.Bytes(uint64(bytes))}
		}
		out["boost_caches"] = regions
	}

	if h.dictionaries != nil {
		sizes := h.dictionaries.Sizes()
		fields := make([]string, 0, len(sizes))
		for f := range sizes {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		terms := make(map[string]string, len(sizes))
		for _, f := range fields {
			if sizes[f] < 0 {
				terms[f] = "unknown"
				continue
			}
			terms[f] = humanize.Comma(int64(sizes[f]))
		}
		out["dictionaries"] = map[string]any{
			"generation": h.dictionaries.Generation(),
			"terms":      terms,
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CacheInvalidate handles POST /api/v1/cache/invalidate.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "invalidated"}
	if h.boostCaches != nil {
		out["boost_entries_dropped"] = h.boostCaches.Invalidate()
	}
	if h.results != nil {
		deleted, err := h.results.Invalidate(r.Context())
		if err != nil {
			h.logger.Error("cache invalidation failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
			return
		}
		out["result_keys_deleted"] = deleted
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
