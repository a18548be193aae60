package v1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/pkg/api"
)

type ModelCatalog interface {
	List() []api.ModelDescriptor
	Names() []string
}

type ModelHandler struct {
	models  ModelCatalog
	version string
}

func NewModelHandler(models ModelCatalog, version string) *ModelHandler {
	return &ModelHandler{
		models:  models,
		version: version,
	}
}

func (h *ModelHandler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, api.IndexResponse{
		Message:   fmt.Sprintf("LLM Proxy Service v%s", h.version),
		Providers: api.Providers(),
		Models:    h.models.Names(),
	})
}

func (h *ModelHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, api.ModelList{Models: h.models.List()})
}

func (h *ModelHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:             "healthy",
		Service:            "llm-proxy",
		Version:            h.version,
		SupportedProviders: api.Providers(),
	})
}
