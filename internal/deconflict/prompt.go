package deconflict

import (
	"fmt"
	"strings"
)

// systemPrompt instructs the judge on the one-event-vs-many decision.
const systemPrompt = `You are an analyst reviewing clustered news-event names about one country's international activity. The names below were grouped by embedding similarity on a single day; your job is to decide whether they describe the same real-world event.

Names describing one event observed at different narrative stages (announcement, preparation, execution, aftermath) are STILL ONE EVENT and belong in one group. Names describing genuinely distinct events belong in separate groups.

Respond with valid JSON only, in exactly this shape:
{"same_event": <bool>, "groups": [[<1-based name indices>], ...], "confidence": <0.0-1.0>, "rationale": "<one or two sentences>"}

Rules:
- Every index from 1 to N must appear in exactly one group.
- same_event is true only when all names fall into a single group.
- Do not invent indices and do not omit any.`

// buildUserPrompt renders the numbered unique names for one cluster.
func buildUserPrompt(uniqueNames []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Candidate event names (%d):\n", len(uniqueNames))
	for i, name := range uniqueNames {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
	}
	sb.WriteString("\nGroup these names by real-world event.")
	return sb.String()
}
