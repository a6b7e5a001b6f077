package group

import (
	"fmt"
	"sort"
	"time"

	"mediadupfinder/internal/models"
)

type monthKey struct {
	year  int
	month time.Month
}

// MonthBuckets partitions assets by the (month, year) of their creation
// date. Buckets are ordered newest first, members oldest first.
func MonthBuckets(assets []models.AssetRef) []models.MonthBucket {
	byMonth := make(map[monthKey][]models.AssetRef)
	for _, a := range assets {
		k := monthKey{year: a.CreationDate.Year(), month: a.CreationDate.Month()}
		byMonth[k] = append(byMonth[k], a)
	}

	buckets := make([]models.MonthBucket, 0, len(byMonth))
	for k, members := range byMonth {
		models.SortOldestFirst(members)
		buckets = append(buckets, models.MonthBucket{
			Title:   MonthTitle(k.month, k.year),
			Year:    k.year,
			Month:   k.month,
			Members: members,
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Year != buckets[j].Year {
			return buckets[i].Year > buckets[j].Year
		}
		return buckets[i].Month > buckets[j].Month
	})
	return buckets
}

// MonthTitle formats a bucket title such as "March 2024"
func MonthTitle(m time.Month, year int) string {
	return fmt.Sprintf("%s %d", m, year)
}
