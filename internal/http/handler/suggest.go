package handler

import (
	"net/http"
	"strings"

	"github.com/ara818/autocompleter/internal/autocomplete"
	"github.com/ara818/autocompleter/pkg/jsonx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SuggestHandler serves the query surface of the autocomplete engine.
type SuggestHandler struct {
	log    *zap.Logger
	engine *autocomplete.Engine
}

// NewSuggestHandler constructs a SuggestHandler instance.
func NewSuggestHandler(log *zap.Logger, engine *autocomplete.Engine) *SuggestHandler {
	return &SuggestHandler{
		log:    log.Named("suggest"),
		engine: engine,
	}
}

// Suggest handles GET /api/suggest/:name?q=...&facets=...
//
// The q parameter is mandatory: a caller that omits it is broken, and
// gets a 500 rather than a silently empty result. The optional facets
// parameter carries a JSON facet expression; a malformed one is the
// caller's fault and gets a 400.
func (h *SuggestHandler) Suggest(c *gin.Context) {
	name := c.Param("name")

	q, ok := c.GetQuery("q")
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "missing required parameter: q"})
		return
	}

	var facets []autocomplete.Facet
	if raw := c.Query("facets"); raw != "" {
		if err := jsonx.ParseJSONObject(strings.NewReader(raw), &facets); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "malformed facets parameter"})
			return
		}
		if !autocomplete.ValidateFacets(facets) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid facets parameter"})
			return
		}
	}

	results, err := h.engine.Suggest(c.Request.Context(), name, q, facets)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, results)
}

// ExactSuggest handles GET /api/exact_suggest/:name?q=...
func (h *SuggestHandler) ExactSuggest(c *gin.Context) {
	name := c.Param("name")

	q, ok := c.GetQuery("q")
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "missing required parameter: q"})
		return
	}

	results, err := h.engine.ExactSuggest(c.Request.Context(), name, q)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, results)
}

// Item handles GET /api/item/:provider/:id, returning the stored payload
// of a single indexed item.
func (h *SuggestHandler) Item(c *gin.Context) {
	payload, err := h.engine.ProviderResult(c.Request.Context(), c.Param("provider"), c.Param("id"))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	if payload == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "item not found"})
		return
	}

	c.Data(http.StatusOK, "application/json", payload)
}
