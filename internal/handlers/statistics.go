package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"expense-ledger/internal/apperr"
	"expense-ledger/internal/report"
)

// StatsResponse is the monthly spending breakdown.
type StatsResponse struct {
	*report.MonthlySummary
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	MonthName      string `json:"month_name"`
	PrevYear       int    `json:"prev_year"`
	PrevMonth      int    `json:"prev_month"`
	NextYear       int    `json:"next_year"`
	NextMonth      int    `json:"next_month"`
	IsCurrentMonth bool   `json:"is_current_month"`
}

// yearMonth reads year and month query params, defaulting to the current month.
func yearMonth(r *http.Request, now time.Time) (int, time.Month, error) {
	year := now.Year()
	month := int(now.Month())

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil || y < 1970 || y > 9999 {
			return 0, 0, apperr.Validation("invalid year")
		}
		year = y
	}
	if monthStr := r.URL.Query().Get("month"); monthStr != "" {
		m, err := strconv.Atoi(monthStr)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, apperr.Validation("invalid month")
		}
		month = m
	}
	return year, time.Month(month), nil
}

// Statistics returns the caller's category totals and expenses for a month.
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	year, month, err := yearMonth(r, now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.currentAccount(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sum, err := report.Monthly(r.Context(), h.db, account, year, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	prevDate := sum.Month.AddDate(0, -1, 0)
	nextDate := sum.Month.AddDate(0, 1, 0)

	writeJSON(w, http.StatusOK, StatsResponse{
		MonthlySummary: sum,
		Year:           year,
		Month:          int(month),
		MonthName:      month.String(),
		PrevYear:       prevDate.Year(),
		PrevMonth:      int(prevDate.Month()),
		NextYear:       nextDate.Year(),
		NextMonth:      int(nextDate.Month()),
		IsCurrentMonth: year == now.Year() && month == now.Month(),
	})
}

// ReportPDF renders the monthly statement as a PDF download. Premium only.
func (h *Handlers) ReportPDF(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonth(r, time.Now().UTC())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	account, err := h.requirePremium(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sum, err := report.Monthly(r.Context(), h.db, account, year, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pdf, err := report.BuildPDF(sum)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("build pdf: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="expenses-%04d-%02d.pdf"`, year, int(month)))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
