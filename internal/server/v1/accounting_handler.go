package v1

import (
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/accounting"
	"github.com/nulzo/llm-proxy/internal/server/validator"
	"github.com/nulzo/llm-proxy/pkg/api"
)

const defaultCountModel = "gpt-3.5-turbo"

type Accountant interface {
	Count(text, model string) accounting.TokenCount
	Estimate(model string, inputTokens, outputTokens int) (accounting.CostEstimate, error)
}

type AccountingHandler struct {
	accountant Accountant
}

func NewAccountingHandler(accountant Accountant) *AccountingHandler {
	return &AccountingHandler{accountant: accountant}
}

// CountTokens accepts a JSON body or ?text=&model= query parameters.
func (h *AccountingHandler) CountTokens(c *gin.Context) {
	var req api.TokenCountRequest
	if err := c.ShouldBind(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}
	if req.Model == "" {
		req.Model = defaultCountModel
	}

	count := h.accountant.Count(req.Text, req.Model)

	c.JSON(http.StatusOK, api.TokenCountResponse{
		Text:       req.Text,
		Model:      req.Model,
		Tokens:     count.Tokens,
		Characters: utf8.RuneCountInString(req.Text),
		Method:     string(count.Method),
	})
}

func (h *AccountingHandler) EstimateCost(c *gin.Context) {
	var req api.CostEstimateRequest
	if err := c.ShouldBind(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	est, err := h.accountant.Estimate(req.Model, req.InputTokens, req.OutputTokens)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, api.CostEstimateResponse{
		Model:        est.Model,
		InputTokens:  est.InputTokens,
		OutputTokens: est.OutputTokens,
		TotalTokens:  est.InputTokens + est.OutputTokens,
		InputCost:    est.InputCost,
		OutputCost:   est.OutputCost,
		TotalCost:    est.TotalCost,
		Currency:     "USD",
	})
}
