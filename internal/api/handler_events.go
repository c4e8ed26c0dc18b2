package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
)

type createEventRequest struct {
	Movement     model.Movement `json:"movimiento" binding:"required,oneof=Entrada Salida"`
	VehicleID    flexInt        `json:"vehiculo_id" binding:"required"`
	Timestamp    *string        `json:"fecha_hora"`
	Door         *string        `json:"puerta"`
	StayDuration *flexInt       `json:"tiempo_estadia"`
}

type stayResponse struct {
	Seconds int64 `json:"tiempo_estadia_segundos"`
	Minutes int64 `json:"tiempo_estadia_minutos"`
	Hours   int64 `json:"tiempo_estadia_horas"`
}

// CreateEvent appends an Entrada or Salida to the ledger.
func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "movimiento (Entrada|Salida) and a positive integer vehiculo_id are required: "+err.Error())
		return
	}
	if req.VehicleID <= 0 {
		badRequest(c, "vehiculo_id", "must be a positive integer")
		return
	}
	ts, err := parseOptionalTimestamp(req.Timestamp, h.loc)
	if err != nil {
		badRequest(c, "fecha_hora", err.Error())
		return
	}
	var stay *int64
	if req.StayDuration != nil {
		if *req.StayDuration < 0 {
			badRequest(c, "tiempo_estadia", "must be a non-negative integer")
			return
		}
		s := int64(*req.StayDuration)
		stay = &s
	}

	receipt, err := h.ledger.Append(c.Request.Context(), ledger.AppendRequest{
		Movement:     req.Movement,
		VehicleID:    int64(req.VehicleID),
		Timestamp:    ts,
		Door:         nonEmpty(req.Door),
		StayDuration: stay,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"message": "entry registered",
		"data":    receipt.Event,
	}
	if receipt.Stay != nil {
		resp["message"] = fmt.Sprintf("exit registered, stay: %d seconds", receipt.Stay.Seconds)
		resp["tiempo_calculado"] = stayResponse{
			Seconds: receipt.Stay.Seconds,
			Minutes: receipt.Stay.Minutes,
			Hours:   receipt.Stay.Hours,
		}
	}
	c.JSON(http.StatusCreated, resp)
}

// ListEvents returns every event matching the optional query filters.
func (h *Handler) ListEvents(c *gin.Context) {
	var filter model.EventFilter
	if raw := c.Query("vehiculo_id"); raw != "" {
		id, ok := parsePositiveID(raw)
		if !ok {
			badRequest(c, "vehiculo_id", "must be a positive integer")
			return
		}
		filter.VehicleID = id
	}
	if raw := c.Query("movimiento"); raw != "" {
		filter.Movement = model.Movement(raw)
	}
	from, err := parseOptionalTimestamp(optionalQuery(c, "desde"), h.loc)
	if err != nil {
		badRequest(c, "desde", err.Error())
		return
	}
	to, err := parseOptionalTimestamp(optionalQuery(c, "hasta"), h.loc)
	if err != nil {
		badRequest(c, "hasta", err.Error())
		return
	}
	filter.From, filter.To = from, to

	events, err := h.admin.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(events), "data": events})
}

// GetEvent returns a single event.
func (h *Handler) GetEvent(c *gin.Context) {
	id, ok := parsePositiveID(c.Param("id"))
	if !ok {
		badRequest(c, "id", "invalid event id")
		return
	}
	event, err := h.admin.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": event})
}

type updateEventRequest struct {
	Movement     *string  `json:"movimiento"`
	Timestamp    *string  `json:"fecha_hora"`
	Door         *string  `json:"puerta"`
	StayDuration *flexInt `json:"tiempo_estadia"`
	VehicleID    *flexInt `json:"vehiculo_id"`
}

// UpdateEvent overwrites the given fields of an event without checking
// that entries and exits still alternate.
func (h *Handler) UpdateEvent(c *gin.Context) {
	id, ok := parsePositiveID(c.Param("id"))
	if !ok {
		badRequest(c, "id", "invalid event id")
		return
	}
	var req updateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err.Error())
		return
	}

	var patch ledger.EventPatch
	if req.Movement != nil {
		m := model.Movement(*req.Movement)
		patch.Movement = &m
	}
	ts, err := parseOptionalTimestamp(req.Timestamp, h.loc)
	if err != nil {
		badRequest(c, "fecha_hora", err.Error())
		return
	}
	patch.Timestamp = ts
	patch.Door = req.Door
	if req.StayDuration != nil {
		s := int64(*req.StayDuration)
		patch.StayDuration = &s
	}
	if req.VehicleID != nil {
		v := int64(*req.VehicleID)
		patch.VehicleID = &v
	}

	event, err := h.admin.UpdateRaw(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "event updated", "data": event})
}

// DeleteEvent removes an event without checking the ledger invariant.
func (h *Handler) DeleteEvent(c *gin.Context) {
	id, ok := parsePositiveID(c.Param("id"))
	if !ok {
		badRequest(c, "id", "invalid event id")
		return
	}
	if err := h.admin.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "event deleted", "data": gin.H{"deletedId": id}})
}

func optionalQuery(c *gin.Context, key string) *string {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	return &v
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
