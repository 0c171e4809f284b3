package careplan

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careplan/careplan/pkg/apperrors"
	"github.com/careplan/careplan/pkg/pagination"
)

type Handler struct {
	svc          *Service
	listMaxLimit int
}

// NewHandler builds the HTTP handler. listMaxLimit caps list page size; 0
// leaves the list unbounded.
func NewHandler(svc *Service, listMaxLimit int) *Handler {
	return &Handler{svc: svc, listMaxLimit: listMaxLimit}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/careplans", h.ListCarePlans)
	api.POST("/careplans", h.CreateCarePlan)
	api.POST("/careplans/generate", h.Generate)
	api.GET("/careplans/:id", h.GetCarePlan)
	api.PUT("/careplans/:id", h.UpdateCarePlan)
	api.PATCH("/careplans/:id", h.UpdateCarePlan)
	api.DELETE("/careplans/:id", h.DeleteCarePlan)
	api.GET("/careplans/:id/status", h.Status)
	api.GET("/careplans/:id/download", h.Download)
}

// carePlanInput is the client-writable subset of a CarePlan. Any other field
// in the request body is ignored.
type carePlanInput struct {
	PatientInfo *string `json:"patient_info"`
}

func bindInput(c echo.Context) (carePlanInput, error) {
	var in carePlanInput
	if err := c.Bind(&in); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return in, err
		}
		return in, apperrors.NewValidationError("Invalid request body.")
	}
	return in, nil
}

// parseID treats a malformed id like an unknown one.
func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, errNotFound()
	}
	return id, nil
}

func (h *Handler) Generate(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	if in.PatientInfo == nil {
		return apperrors.NewValidationError(msgPatientInfoRequired)
	}
	cp, err := h.svc.Generate(c.Request().Context(), *in.PatientInfo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cp)
}

func (h *Handler) Status(c echo.Context) error {
	return h.GetCarePlan(c)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cp, err := h.svc.GetCarePlan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, cp.DownloadFilename()))
	return c.JSON(http.StatusOK, cp)
}

// -- CRUD --

func (h *Handler) CreateCarePlan(c echo.Context) error {
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	if in.PatientInfo == nil {
		return apperrors.NewValidationError(msgPatientInfoRequired)
	}
	cp, err := h.svc.CreateCarePlan(c.Request().Context(), *in.PatientInfo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, cp)
}

func (h *Handler) GetCarePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cp, err := h.svc.GetCarePlan(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cp)
}

func (h *Handler) ListCarePlans(c echo.Context) error {
	pg := pagination.FromContext(c, h.listMaxLimit)
	items, total, err := h.svc.ListCarePlans(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	c.Response().Header().Set("X-Total-Count", strconv.Itoa(total))
	if link := pg.LinkHeader(c.Request().URL.Path, total); link != "" {
		c.Response().Header().Set("Link", link)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateCarePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	in, err := bindInput(c)
	if err != nil {
		return err
	}
	cp, err := h.svc.UpdateCarePlan(c.Request().Context(), id, in.PatientInfo)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cp)
}

func (h *Handler) DeleteCarePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCarePlan(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
