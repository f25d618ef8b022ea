package deconflict

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
)

// rawVerdict is the judge's wire shape before validation.
type rawVerdict struct {
	SameEvent  bool    `json:"same_event"`
	Groups     [][]int `json:"groups"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// parseVerdict parses and validates judge output against the reviewed names.
// The groups must partition 1..len(uniqueNames) exactly once; anything else
// is an error the caller converts into the fail-safe single-group fallback.
func parseVerdict(text string, uniqueNames []string) (*model.RefinedClusters, error) {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("deconflict: empty judge response")
	}

	var raw rawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrap(err, "deconflict: parse judge JSON")
	}

	if err := validatePartition(raw.Groups, len(uniqueNames)); err != nil {
		return nil, err
	}

	// A single group is by definition one event, whatever the judge said.
	sameEvent := len(raw.Groups) == 1

	return &model.RefinedClusters{
		SameEvent:   sameEvent,
		Groups:      raw.Groups,
		Rationale:   raw.Rationale,
		Confidence:  raw.Confidence,
		UniqueNames: uniqueNames,
	}, nil
}

// validatePartition checks that groups cover every index 1..n exactly once.
func validatePartition(groups [][]int, n int) error {
	if len(groups) == 0 {
		return eris.New("deconflict: judge returned no groups")
	}

	seen := make(map[int]bool, n)
	total := 0
	for _, g := range groups {
		if len(g) == 0 {
			return eris.New("deconflict: judge returned an empty group")
		}
		for _, idx := range g {
			if idx < 1 || idx > n {
				return eris.Errorf("deconflict: index %d out of range 1..%d", idx, n)
			}
			if seen[idx] {
				return eris.Errorf("deconflict: index %d appears in more than one group", idx)
			}
			seen[idx] = true
			total++
		}
	}
	if total != n {
		return eris.Errorf("deconflict: groups cover %d of %d indices", total, n)
	}
	return nil
}

// cleanJSON strips markdown fences and any prose around the first JSON
// object in the judge's reply.
func cleanJSON(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}
