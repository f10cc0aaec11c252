package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartcampus/timetable-engine/internal/dto"
	"github.com/smartcampus/timetable-engine/internal/models"
	"github.com/smartcampus/timetable-engine/internal/service"
	appErrors "github.com/smartcampus/timetable-engine/pkg/errors"
	"github.com/smartcampus/timetable-engine/pkg/jobs"
	"github.com/smartcampus/timetable-engine/pkg/response"
)

const (
	maxCourses  = 128
	maxSections = 64
)

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	GenerateAsync(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.AsyncGenerateResponse, error)
	JobStatus(id string) (jobs.Snapshot, error)
	Save(ctx context.Context, req dto.SaveTimetableRequest) (string, error)
	List(ctx context.Context, query dto.TimetableQuery) ([]models.Timetable, error)
	GetSlots(ctx context.Context, id string) ([]models.TimetableSlot, error)
	Delete(ctx context.Context, id string) error
}

// TimetableHandler exposes the timetable generation endpoints.
type TimetableHandler struct {
	service      timetableGenerator
	asyncEnabled bool
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService, asyncEnabled bool) *TimetableHandler {
	return &TimetableHandler{service: svc, asyncEnabled: asyncEnabled}
}

// Register mounts the timetable routes on the given group.
func (h *TimetableHandler) Register(group *gin.RouterGroup) {
	group.POST("/timetable/generate", h.Generate)
	group.POST("/timetable/save", h.Save)
	group.GET("/timetable/jobs/:id", h.JobStatus)
	group.GET("/timetables", h.List)
	group.GET("/timetables/:id/slots", h.Slots)
	group.DELETE("/timetables/:id", h.Delete)
}

// Generate builds a ranked portfolio of timetable solutions. With async=true
// the run is queued and a job id is returned instead.
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	if err := validateGenerateLimits(req); err != nil {
		response.Error(c, err)
		return
	}

	if req.Async {
		if !h.asyncEnabled {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "asynchronous generation is disabled"))
			return
		}
		ack, err := h.service.GenerateAsync(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, ack, nil)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// JobStatus reports the state of a queued generation run.
func (h *TimetableHandler) JobStatus(c *gin.Context) {
	snap, err := h.service.JobStatus(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snap, nil)
}

// Save persists one solution from a generated proposal.
func (h *TimetableHandler) Save(c *gin.Context) {
	var req dto.SaveTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid save payload"))
		return
	}
	id, err := h.service.Save(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"timetableId": id})
}

// List returns stored timetable versions for a department/semester/year tuple.
func (h *TimetableHandler) List(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Slots returns the scheduled sessions of a stored timetable.
func (h *TimetableHandler) Slots(c *gin.Context) {
	slots, err := h.service.GetSlots(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Delete removes a draft timetable version.
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func validateGenerateLimits(req dto.GenerateTimetableRequest) error {
	if len(req.Courses) > maxCourses {
		return appErrors.Clone(appErrors.ErrValidation, "courses exceeds supported limit")
	}
	if len(req.Sections) > maxSections {
		return appErrors.Clone(appErrors.ErrValidation, "sections exceeds supported limit")
	}
	return nil
}
