// Package utils provides NSE market-hours helpers.
package utils

import (
	"time"

	"neo-trader/internal/models"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Session boundaries in minutes after midnight IST.
const (
	preOpenStart   = 9 * 60     // 09:00
	marketOpen     = 9*60 + 15  // 09:15
	misWarnStart   = 15 * 60    // 15:00
	misSquareOff   = 15*60 + 15 // 15:15
	marketCloseMin = 15*60 + 30 // 15:30
)

// MarketStatusAt returns the market status at t. Exchange holidays are not
// known here; only weekends are treated as closed days.
func MarketStatusAt(t time.Time) models.MarketStatus {
	now := t.In(IndiaLocation)

	// Check if weekend
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return models.MarketClosed
	}

	timeMinutes := now.Hour()*60 + now.Minute()

	switch {
	case timeMinutes >= preOpenStart && timeMinutes < marketOpen:
		return models.MarketPreOpen
	case timeMinutes >= misWarnStart && timeMinutes < misSquareOff:
		return models.MarketMISSquareOffWarn
	case timeMinutes >= marketOpen && timeMinutes < marketCloseMin:
		return models.MarketOpen
	}

	return models.MarketClosed
}

// NextMarketOpenAfter returns the first 09:15 IST weekday open after t.
func NextMarketOpenAfter(t time.Time) time.Time {
	now := t.In(IndiaLocation)

	// Start with today at 9:15
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, IndiaLocation)

	// If already past today's open, move to tomorrow
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}

	// Skip weekends
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}

	return next
}

// MarketCloseOn returns the 15:30 IST close on t's trading day.
func MarketCloseOn(t time.Time) time.Time {
	day := t.In(IndiaLocation)
	return time.Date(day.Year(), day.Month(), day.Day(), 15, 30, 0, 0, IndiaLocation)
}
