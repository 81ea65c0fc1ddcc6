package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// errorCodeCount pairs a provider error code with its occurrence count.
type errorCodeCount struct {
	Code  string
	Count int
}

// topErrorCodes ranks failure codes by occurrence count, ties broken by
// first-seen order, and returns at most limit entries.
func topErrorCodes(counts map[string]int, firstSeen []string, limit int) []errorCodeCount {
	if limit <= 0 || len(counts) == 0 {
		return nil
	}

	position := make(map[string]int, len(firstSeen))
	for index, code := range firstSeen {
		if _, ok := position[code]; !ok {
			position[code] = index
		}
	}

	ranked := make([]errorCodeCount, 0, len(counts))
	for code, count := range counts {
		ranked = append(ranked, errorCodeCount{Code: code, Count: count})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return position[ranked[i].Code] < position[ranked[j].Code]
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func buildDesyncAlert(report Report) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Reconciliation found %d desynced member(s) out of %d checked:\n", report.Desynced, report.Total)
	for _, finding := range report.Findings {
		if finding.Outcome != OutcomeDesynced {
			continue
		}
		fmt.Fprintf(&builder, "- member %s (chat %s, subscription %s): external status %q, suggested action: %s\n",
			finding.MemberID,
			finding.ExternalChatID,
			finding.ExternalSubscriptionID,
			finding.ExternalStatus,
			finding.SuggestedAction,
		)
	}
	return strings.TrimRight(builder.String(), "\n")
}

func buildCriticalFailureAlert(report Report, top []errorCodeCount) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "CRITICAL: reconciliation failure rate %d/%d exceeds 50%%; the provider API looks unhealthy.\n", report.Failed, report.Total)
	if len(top) > 0 {
		builder.WriteString("Top error codes:\n")
		for _, entry := range top {
			fmt.Fprintf(&builder, "- %s (%d)\n", entry.Code, entry.Count)
		}
	}
	return strings.TrimRight(builder.String(), "\n")
}
