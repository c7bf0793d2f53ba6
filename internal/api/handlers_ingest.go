package api

import (
	"iter"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ingestRequest is a batch of records to write into the store, each a
// column-name-to-value map matching the store's configured columns.
// UniqueIDCol only matters on the first ingest against a fresh store
// (spec.md §4.C step 1 adopts and persists it); it defaults to the
// configured ingest.unique_id_col when omitted.
type ingestRequest struct {
	Records     []map[string]string `json:"records" binding:"required"`
	UniqueIDCol string               `json:"unique_id_col"`
}

// ingestHandler handles POST /api/v1/ingest
func (s *Server) ingestHandler(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, err.Error())
		return
	}
	if len(req.Records) == 0 {
		BadRequestError(c, "records must be non-empty")
		return
	}

	uniqueIDCol := req.UniqueIDCol
	if uniqueIDCol == "" {
		uniqueIDCol = s.config.Ingest.UniqueIDCol
	}

	batchSize := s.config.Ingest.BatchSize
	if v := c.Query("batch_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			batchSize = n
		}
	}
	writeCountersNow := s.config.Ingest.WriteCountersNow
	if v := c.Query("write_counters_now"); v != "" {
		writeCountersNow = v == "true"
	}

	stats, err := s.store.WriteBatch(c.Request.Context(), sliceToSeq(req.Records), uniqueIDCol, batchSize, writeCountersNow)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	CreatedResponse(c, "ingest complete", stats)
}

// getRecordHandler handles GET /api/v1/records/:id
func (s *Server) getRecordHandler(c *gin.Context) {
	id := c.Param("id")
	fields, found, err := s.store.GetRecord(c.Request.Context(), id)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	if !found {
		NotFoundError(c, "record not found")
		return
	}
	SuccessResponse(c, "ok", fields)
}

func sliceToSeq(records []map[string]string) iter.Seq[map[string]string] {
	return func(yield func(map[string]string) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}
}
