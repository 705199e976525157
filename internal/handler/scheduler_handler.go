// internal/handler/scheduler_handler.go
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/hearthside/crm-backend/internal/scheduler"
)

// RunScheduler exposes a scheduling pass over HTTP so an external cron
// can trigger activation without waiting for the background loop.
func RunScheduler(log *slog.Logger, sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		updated, err := sched.RunOnce(r.Context())
		if err != nil {
			log.Error("scheduler run failed", "error", err)
			Err(w, r, err)
			return
		}
		render.JSON(w, r, map[string]int{"updated": updated})
	}
}
