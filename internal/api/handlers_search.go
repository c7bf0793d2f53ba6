package api

import (
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/moj-analytical-services/fuzzyfinder-go/internal/finder"
)

// searchRequest is a query record plus optional overrides of the
// configured search limits.
type searchRequest struct {
	Query     map[string]string `json:"query" binding:"required"`
	Limit     int               `json:"limit"`
	Intensity int               `json:"intensity"`
}

// searchResultItem is one ranked candidate in a search response.
type searchResultItem struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	Score     float64        `json:"score"`
	BM25Score float64        `json:"bm25_score"`
}

// searchHandler handles POST /api/v1/search
func (s *Server) searchHandler(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}

	cfg := finder.Config{
		ReturnRecordsLimit:    s.config.Search.ReturnRecordsLimit,
		IndividualSearchLimit: s.config.Search.IndividualSearchLimit,
		SearchIntensity:       s.config.Search.SearchIntensity,
		BestScoreThreshold:    s.config.Search.BestScoreThreshold,
	}
	if req.Limit > 0 {
		cfg.ReturnRecordsLimit = clampLimit(req.Limit)
	}
	if req.Intensity > 0 {
		cfg.SearchIntensity = req.Intensity
	}

	f := finder.New(s.store, cfg)
	matches, err := f.FindMatches(c.Request.Context(), req.Query)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	results := make([]searchResultItem, 0, len(matches))
	for id, m := range matches {
		results = append(results, searchResultItem{ID: id, Fields: m.Fields, Score: m.Score, BM25Score: m.BM25Score})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	SuccessResponse(c, "ok", results)
}
