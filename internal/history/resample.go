package history

import (
	"math"
	"time"

	"crypto_backtest/internal/domain"
)

const daysPerWeek = 7

// weekEnd returns the Friday closing the week of d.
func weekEnd(d domain.Date) domain.Date {
	ahead := (int(time.Friday) - int(d.Weekday()) + daysPerWeek) % daysPerWeek
	return d.AddDays(ahead)
}

// Resample aggregates daily bars into weeks ending on Friday, labelled by
// that Friday. Buckets at the edges of the input that do not cover seven
// days are dropped, as are buckets with an undefined price or volume.
func Resample(daily []domain.Bar, class domain.AssetClass) []domain.Bar {
	if len(daily) == 0 {
		return nil
	}

	var (
		out     []domain.Bar
		buckets [][]domain.Bar
	)
	for i := 0; i < len(daily); {
		end := weekEnd(daily[i].Date)
		j := i
		for j < len(daily) && daily[j].Date <= end {
			j++
		}
		buckets = append(buckets, daily[i:j])
		i = j
	}

	for i, bucket := range buckets {
		edge := i == 0 || i == len(buckets)-1
		if edge && len(bucket) < daysPerWeek {
			continue
		}
		if w, ok := aggregate(bucket, class); ok {
			out = append(out, w)
		}
	}
	return out
}

func aggregate(bucket []domain.Bar, class domain.AssetClass) (domain.Bar, bool) {
	nan := math.NaN()
	w := domain.Bar{
		Date:           weekEnd(bucket[0].Date),
		Open:           nan,
		High:           nan,
		Low:            nan,
		Close:          nan,
		PrevClose:      bucket[0].PrevClose,
		Settlement:     nan,
		PrevSettlement: nan,
		OpenInterest:   nan,
	}

	var volume, turnover float64
	var hasVolume, hasTurnover bool
	for _, b := range bucket {
		if math.IsNaN(w.Open) {
			w.Open = b.Open
		}
		if !math.IsNaN(b.Close) {
			w.Close = b.Close
		}
		if !math.IsNaN(b.High) && (math.IsNaN(w.High) || b.High > w.High) {
			w.High = b.High
		}
		if !math.IsNaN(b.Low) && (math.IsNaN(w.Low) || b.Low < w.Low) {
			w.Low = b.Low
		}
		if !math.IsNaN(b.Volume) {
			volume += b.Volume
			hasVolume = true
		}
		if !math.IsNaN(b.TotalTurnover) {
			turnover += b.TotalTurnover
			hasTurnover = true
		}
		if class == domain.CryptoFuture {
			if !math.IsNaN(b.Settlement) {
				w.Settlement = b.Settlement
			}
			if !math.IsNaN(b.PrevSettlement) {
				w.PrevSettlement = b.PrevSettlement
			}
			if !math.IsNaN(b.OpenInterest) {
				w.OpenInterest = b.OpenInterest
			}
		}
	}
	if !hasVolume || !hasTurnover {
		return domain.Bar{}, false
	}
	w.Volume, w.TotalTurnover = volume, turnover

	for _, v := range []float64{w.Open, w.High, w.Low, w.Close} {
		if math.IsNaN(v) {
			return domain.Bar{}, false
		}
	}
	return w, true
}
