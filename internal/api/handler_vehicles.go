package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
)

var presenceDescription = map[ledger.Presence]string{
	ledger.Inside:  "the vehicle is currently inside the parking facility",
	ledger.Outside: "the vehicle is not in the parking facility or has already exited",
}

type openEntryResponse struct {
	ID             int64     `json:"id_registro"`
	Timestamp      time.Time `json:"fecha_hora"`
	Door           *string   `json:"puerta"`
	ElapsedSeconds int64     `json:"tiempo_transcurrido_segundos"`
	ElapsedMinutes int64     `json:"tiempo_transcurrido_minutos"`
	ElapsedHours   int64     `json:"tiempo_transcurrido_horas"`
}

type statusResponse struct {
	VehicleID   int64               `json:"vehiculo_id"`
	State       ledger.Presence     `json:"estado"`
	Description string              `json:"descripcion"`
	OpenEntry   *openEntryResponse  `json:"ultima_entrada,omitempty"`
	Recent      []model.AccessEvent `json:"historial_reciente"`
}

// VehicleEvents returns the vehicle's full history, most recent first.
func (h *Handler) VehicleEvents(c *gin.Context) {
	id, ok := parsePositiveID(c.Param("id"))
	if !ok {
		badRequest(c, "vehiculo_id", "invalid vehicle id")
		return
	}
	events, err := h.ledger.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(events), "vehiculo_id": id, "data": events})
}

// VehicleStatus reports whether the vehicle is inside and since when.
func (h *Handler) VehicleStatus(c *gin.Context) {
	id, ok := parsePositiveID(c.Param("id"))
	if !ok {
		badRequest(c, "vehiculo_id", "invalid vehicle id")
		return
	}
	status, err := h.ledger.CurrentStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := statusResponse{
		VehicleID:   status.VehicleID,
		State:       status.Presence,
		Description: presenceDescription[status.Presence],
		Recent:      status.Recent,
	}
	if status.OpenEntry != nil && status.Elapsed != nil {
		resp.OpenEntry = &openEntryResponse{
			ID:             status.OpenEntry.ID,
			Timestamp:      status.OpenEntry.Timestamp,
			Door:           status.OpenEntry.Door,
			ElapsedSeconds: status.Elapsed.Seconds,
			ElapsedMinutes: status.Elapsed.Minutes,
			ElapsedHours:   status.Elapsed.Hours,
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}
