// internal/subpage/merge.go

package subpage

import (
	"github.com/valpere/DeepScrapexter/internal/extractor"
)

// Merge folds subpage results into the directory records in place. Each
// record is matched first by its profile link (normalized), then by
// container index against the task list. A matched record receives every
// non-meta subpage field, the subpage value winning on collision. Unmatched
// records pass through untouched, so an absent key still means "never
// attempted" rather than "attempted, empty".
func Merge(records []extractor.Record, results map[string]extractor.Record, tasks []*Task) []extractor.Record {
	byIndex := make(map[int]extractor.Record, len(tasks))
	for _, task := range tasks {
		if task.Status == StatusCompleted && task.Data != nil {
			byIndex[task.ContainerIndex] = task.Data
		}
	}

	for _, record := range records {
		sub := matchSubpage(record, results, byIndex)
		if sub == nil {
			continue
		}
		for key, value := range sub {
			if extractor.IsMetaKey(key) {
				continue
			}
			record[key] = value
		}
	}
	return records
}

func matchSubpage(record extractor.Record, results map[string]extractor.Record, byIndex map[int]extractor.Record) extractor.Record {
	if link, ok := record[extractor.MetaProfileLink].(string); ok && link != "" {
		if sub, ok := results[normalizedKey(link)]; ok {
			return sub
		}
	}
	if index, ok := record[extractor.MetaContainerIndex].(int); ok {
		if sub, ok := byIndex[index]; ok {
			return sub
		}
	}
	return nil
}
