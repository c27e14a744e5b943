package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
	"github.com/dd0wney/cluso-waternet/pkg/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleZoneReport streams the zone summary workbook
func (s *Server) handleZoneReport(w http.ResponseWriter, r *http.Request) {
	s.NewMethodRouter(w, r).
		Get(func() {
			zones := s.engine.ZoneSummaries()
			cases := s.engine.Leaks().List(leaks.Filter{Open: true})
			data, err := report.ZoneWorkbook(zones, cases)
			if err != nil {
				s.respondFault(w, r, "ZoneReport", err)
				return
			}
			name := fmt.Sprintf("zones-%s.xlsx", s.engine.Now().UTC().Format("20060102"))
			w.Header().Set("Content-Type", xlsxContentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(data); err != nil {
				s.logger.Warn("failed to write zone report", logging.Error(err))
			}
		}).
		NotAllowed()
}
