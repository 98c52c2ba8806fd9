package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"BlockPay/internal/knowledge"
)

const (
	defaultCreatorLimit = 10
	maxCreatorLimit     = 100
)

type createAtomRequest struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type createTripleRequest struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

type createArtworkRequest struct {
	CreatorAtomID string `json:"creatorAtomId"`
	knowledge.Artwork
}

func (s *Server) graph(c *gin.Context) (Graph, bool) {
	if s.deps.Graph == nil {
		unavailable(c, "知识图谱")
		return nil, false
	}
	return s.deps.Graph, true
}

func (s *Server) handleGetAtom(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	atom, err := graph.GetAtom(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, atom)
}

func (s *Server) handleCreateAtom(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	var req createAtomRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Type) == "" {
		s.writeError(c, badRequest("type 不能为空"))
		return
	}
	atom, err := graph.CreateAtom(c.Request.Context(), req.Type, req.Data)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, atom)
}

func (s *Server) handleGetTriples(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	triples, err := graph.GetTriples(c.Request.Context(), c.Query("subject"), c.Query("predicate"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"triples": triples})
}

func (s *Server) handleCreateTriple(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	var req createTripleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Subject == "" || req.Predicate == "" || req.Object == "" {
		s.writeError(c, badRequest("subject、predicate、object 均不能为空"))
		return
	}
	triple, err := graph.CreateTriple(c.Request.Context(), req.Subject, req.Predicate, req.Object)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, triple)
}

func (s *Server) handleTrustScore(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	score, err := graph.GetTrustScore(c.Request.Context(), c.Param("atomId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

func (s *Server) handleTopCreators(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	limit, err := parseLimit(c.Query("limit"), defaultCreatorLimit, maxCreatorLimit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	creators, err := graph.GetTopCreators(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"creators": creators})
}

func (s *Server) handleCreateArtwork(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	var req createArtworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("请求体解析失败"))
		return
	}
	atom, err := graph.CreateArtworkAtom(c.Request.Context(), req.CreatorAtomID, req.Artwork)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, atom)
}

func (s *Server) handleRecordJob(c *gin.Context) {
	graph, ok := s.graph(c)
	if !ok {
		return
	}
	var job knowledge.JobCompletion
	if err := c.ShouldBindJSON(&job); err != nil {
		s.writeError(c, badRequest("请求体解析失败"))
		return
	}
	if job.CreatorAtomID == "" || job.ClientAtomID == "" || job.JobAtomID == "" || job.ArtworkAtomID == "" {
		s.writeError(c, badRequest("creatorAtomId、clientAtomId、jobAtomId、artworkAtomId 均不能为空"))
		return
	}
	if err := graph.RecordJobCompletion(c.Request.Context(), job); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
