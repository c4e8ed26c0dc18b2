package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	ledger  *ledger.Ledger
	admin   *ledger.Admin
	store   store.Store
	webpush *webpush.Options
	// loc interprets timestamps sent without an offset.
	loc *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(l *ledger.Ledger, s store.Store, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		ledger:  l,
		admin:   ledger.NewAdmin(s),
		store:   s,
		webpush: webpushOptions,
		loc:     loc,
	}
}
