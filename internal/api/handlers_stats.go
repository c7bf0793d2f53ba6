package api

import "github.com/gin-gonic/gin"

// statsHandler handles GET /api/v1/stats
func (s *Server) statsHandler(c *gin.Context) {
	stats, err := s.store.GetStats()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	SuccessResponse(c, "ok", stats)
}
