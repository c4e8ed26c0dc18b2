package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/model"
)

type fieldSpec struct {
	Required    bool     `json:"required"`
	Type        string   `json:"type"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *int     `json:"minimum,omitempty"`
	Description string   `json:"description"`
}

// GetConfig describes the accepted movements, the request fields and the
// error codes clients may receive.
func (h *Handler) GetConfig(c *gin.Context) {
	movements := make([]string, 0, 2)
	for _, m := range model.Movements() {
		movements = append(movements, string(m))
	}
	zero := 0

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"movimientos": movements,
			"campos": gin.H{
				"movimiento": fieldSpec{Required: true, Type: "string", Enum: movements,
					Description: "movement type; the stay of a Salida is computed automatically"},
				"vehiculo_id": fieldSpec{Required: true, Type: "integer",
					Description: "id of the vehicle"},
				"fecha_hora": fieldSpec{Type: "datetime",
					Description: "RFC 3339; the current time is used when absent, values without an offset are read in " + h.loc.String()},
				"puerta": fieldSpec{Type: "string",
					Description: "identifier of the access door"},
				"tiempo_estadia": fieldSpec{Type: "integer", Minimum: &zero,
					Description: "seconds; optional for Entrada, ignored and computed for Salida"},
			},
			"codigos_error": gin.H{
				ledger.CodeDuplicateEntry: messageByCode[ledger.CodeDuplicateEntry],
				ledger.CodeNoOpenEntry:    messageByCode[ledger.CodeNoOpenEntry],
				ledger.CodeNegativeStay:   messageByCode[ledger.CodeNegativeStay],
				ledger.CodeUnknownVehicle: messageByCode[ledger.CodeUnknownVehicle],
				ledger.CodeInconsistency:  messageByCode[ledger.CodeInconsistency],
			},
		},
	})
}
