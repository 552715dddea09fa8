package api

import (
	"crypto/subtle"
	"net/http"

	"sme-compliance/internal/domain/model"
	"sme-compliance/internal/infra/logging"
)

func (s *Server) handleCronReminders(w http.ResponseWriter, r *http.Request) {
	tok, ok := bearer(r)
	if s.opts.CronSecret == "" || !ok || subtle.ConstantTimeCompare([]byte(tok), []byte(s.opts.CronSecret)) != 1 {
		s.audit.Record(r.Context(), nil, model.EventCronRejected, model.AuditWarning, "", map[string]any{
			"path": r.URL.Path,
		})
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	if s.reminders == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "reminders are not configured")
		return
	}
	stats, err := s.reminders.RunOnce(r.Context())
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Warn().Err(err).Msg("cron reminder run failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
