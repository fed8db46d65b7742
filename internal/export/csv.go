package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"

	"github.com/sadopc/tally/internal/store"
)

// ToCSV writes one row per archived period and category.
func ToCSV(records []store.ArchiveRecord, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	// Header
	if err := w.Write([]string{"Period Start", "Period End", "Category", "Total", "Target", "Provenance"}); err != nil {
		return err
	}

	for _, r := range records {
		for _, cat := range categoriesOf(r) {
			target := ""
			if v, ok := r.Targets[cat]; ok {
				target = fmt.Sprintf("%d", v)
			}
			row := []string{
				r.PeriodStartDate,
				r.PeriodEndDate,
				cat,
				fmt.Sprintf("%d", r.Totals[cat]),
				target,
				string(r.Metadata.Provenance),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

func categoriesOf(r store.ArchiveRecord) []string {
	seen := make(map[string]bool)
	var cats []string
	for c := range r.Totals {
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	for c := range r.Targets {
		if !seen[c] {
			seen[c] = true
			cats = append(cats, c)
		}
	}
	sort.Strings(cats)
	return cats
}
