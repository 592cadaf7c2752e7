package coding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rcm/rcm/internal/extract"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/retriever"
	"github.com/rcm/rcm/pkg/pagination"
)

// ReferenceAdmin is what the handler needs for guideline corpus maintenance
// and ad-hoc lookups.
type ReferenceAdmin interface {
	Ingest(ctx context.Context, dir string) (int, error)
	Query(ctx context.Context, text string, k int) ([]retriever.Passage, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

type Handler struct {
	svc            *Service
	refs           ReferenceAdmin
	batchSizeLimit int
	concurrency    int
}

func NewHandler(svc *Service, refs ReferenceAdmin, batchSizeLimit, concurrency int) *Handler {
	if batchSizeLimit < 1 {
		batchSizeLimit = 50
	}
	if concurrency < 1 {
		concurrency = 4
	}
	return &Handler{svc: svc, refs: refs, batchSizeLimit: batchSizeLimit, concurrency: concurrency}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/coding", auth.RequireRole("admin", "coder"))
	g.POST("/validate", h.Validate)
	g.POST("/validate/batch", h.ValidateBatch)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)

	refs := api.Group("/references", auth.RequireRole("admin"))
	refs.POST("/ingest", h.IngestReferences)
	refs.POST("/query", h.QueryReferences)
	refs.GET("/count", h.CountReferences)
	refs.DELETE("", h.ClearReferences)
}

type validateRequest struct {
	Narrative   string              `json:"narrative"`
	Rows        []map[string]string `json:"rows"`
	CSV         string              `json:"csv"`
	SegmentText string              `json:"segment_text"`
	ManualCodes ManualCodeSet       `json:"manual_codes"`
	Setting     string              `json:"setting"`
	Specialty   string              `json:"specialty"`
	PayerType   string              `json:"payer_type"`
}

// toRequest tokenizes raw CSV content into rows when the caller did not
// pre-tokenize; explicit rows win over csv.
func (v validateRequest) toRequest() (Request, error) {
	rows := v.Rows
	if len(rows) == 0 && v.CSV != "" {
		parsed, err := extract.ParseDelimited(strings.NewReader(v.CSV))
		if err != nil {
			return Request{}, err
		}
		rows = parsed
	}
	return Request{
		Input: extract.Input{
			Rows:        rows,
			SegmentText: v.SegmentText,
			RawText:     v.Narrative,
		},
		ManualCodes: v.ManualCodes,
		Setting:     v.Setting,
		Specialty:   v.Specialty,
		PayerType:   v.PayerType,
	}, nil
}

func (h *Handler) Validate(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	run, err := req.toRequest()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.Run(c.Request().Context(), run)
	if err != nil {
		if errors.Is(err, extract.ErrNoInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ValidateBatch(c echo.Context) error {
	var body struct {
		Claims []validateRequest `json:"claims"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(body.Claims) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "claims is required")
	}
	if len(body.Claims) > h.batchSizeLimit {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "too many claims in one batch")
	}

	reqs := make([]Request, len(body.Claims))
	for i, claim := range body.Claims {
		run, err := claim.toRequest()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("claim %d: %s", i, err.Error()))
		}
		reqs[i] = run
	}
	results := h.svc.RunBatch(c.Request().Context(), reqs, h.concurrency)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	records, total, err := h.svc.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, pg.Limit, pg.Offset))
}

func (h *Handler) IngestReferences(c echo.Context) error {
	var body struct {
		Dir string `json:"dir"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Dir == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "dir is required")
	}
	count, err := h.refs.Ingest(c.Request().Context(), body.Dir)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"ingested": count})
}

func (h *Handler) QueryReferences(c echo.Context) error {
	var body struct {
		Text string `json:"text"`
		K    int    `json:"k"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if body.K <= 0 {
		body.K = retrievalK
	}
	passages, err := h.refs.Query(c.Request().Context(), body.Text, body.K)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"passages": passages})
}

func (h *Handler) CountReferences(c echo.Context) error {
	count, err := h.refs.Count(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"documents": count})
}

func (h *Handler) ClearReferences(c echo.Context) error {
	if err := h.refs.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
