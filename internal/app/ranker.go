package app

import (
	"sort"
	"strings"

	"missionchat/internal/model"
)

const eoPortalSuffix = " - eoPortal"

// RankSources deduplicates citations by mission id and orders them by
// relevance. Within a mission group the higher-scoring citation wins and
// replaces the earlier one in place, keeping the group's original
// position. Citations without a mission id are never merged. The result
// is stable-sorted by score descending and truncated to max.
func RankSources(sources []model.SourceCitation, max int) []model.SourceCitation {
	if len(sources) == 0 {
		return nil
	}

	kept := make([]model.SourceCitation, 0, len(sources))
	position := make(map[string]int)

	for _, src := range sources {
		if src.MissionID == "" {
			kept = append(kept, src)
			continue
		}
		if idx, seen := position[src.MissionID]; seen {
			if src.Score > kept[idx].Score {
				kept[idx] = src
			}
			continue
		}
		position[src.MissionID] = len(kept)
		kept = append(kept, src)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	if max > 0 && len(kept) > max {
		kept = kept[:max]
	}

	for i := range kept {
		kept[i].Title = FormatSourceTitle(kept[i].Title)
		kept[i].URL = NormalizeSourceURL(kept[i].URL)
	}
	return kept
}

// FormatSourceTitle strips the catalog suffix retrieval results carry.
// The suffix can appear stacked, so trimming repeats until the title
// stops changing.
func FormatSourceTitle(title string) string {
	title = strings.TrimSpace(title)
	for strings.HasSuffix(title, eoPortalSuffix) {
		title = strings.TrimSpace(strings.TrimSuffix(title, eoPortalSuffix))
	}
	return title
}

// NormalizeSourceURL prefixes a scheme on bare host paths.
func NormalizeSourceURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}
