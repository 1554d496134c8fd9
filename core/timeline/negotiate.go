package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/athravseruwam07/clarus/core/lms"
)

const versionsPath = "/d2l/api/versions/"

// calendarProduct is the LMS product component that owns the calendar
// endpoints; only its supported versions are candidates.
const calendarProduct = "le"

// negotiateCalendarVersion finds the newest API version this institution
// actually answers calendar requests on. Candidates come from the live
// versions probe merged with the static fallback list, most-preferred
// first; each is probed with the smallest viable payload (one org unit).
//
// A 404 means the version does not exist here: try the next. A 403 means
// the endpoint exists but this probe subject lacks permission: still
// select the version, since a permission failure is not evidence of a
// missing endpoint. Anything else is fatal.
func negotiateCalendarVersion(ctx context.Context, client lms.Client, fallback []string, probeOrgUnit int) (string, error) {
	for _, version := range candidateVersions(ctx, client, fallback) {
		path := fmt.Sprintf("/d2l/api/%s/%s/calendar/events/myEvents/?orgUnitIdsCSV=%d",
			calendarProduct, version, probeOrgUnit)

		_, err := client.Probe(ctx, path)
		switch {
		case err == nil:
			return version, nil
		case lms.IsNotFound(err):
			continue
		case lms.IsForbidden(err):
			return version, nil
		default:
			return "", err
		}
	}
	return "", newSyncError(CodeAPIUnavailable, "no supported calendar API version found")
}

// candidateVersions merges the live supported-versions probe with the
// static fallback list, deduplicated and sorted newest first. A failed
// probe degrades silently to the fallback list.
func candidateVersions(ctx context.Context, client lms.Client, fallback []string) []string {
	seen := make(map[string]bool)
	var candidates []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			candidates = append(candidates, v)
		}
	}

	if body, err := client.Probe(ctx, versionsPath); err == nil {
		var products []struct {
			ProductCode       string   `json:"ProductCode"`
			LatestVersion     string   `json:"LatestVersion"`
			SupportedVersions []string `json:"SupportedVersions"`
		}
		if err = json.Unmarshal(body, &products); err == nil {
			for _, p := range products {
				if p.ProductCode != calendarProduct {
					continue
				}
				add(p.LatestVersion)
				for _, v := range p.SupportedVersions {
					add(v)
				}
			}
		}
	}
	for _, v := range fallback {
		add(v)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return versionLess(candidates[j], candidates[i]) // descending
	})
	return candidates
}

// versionLess compares dotted numeric versions, so "1.9" < "1.10".
func versionLess(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var an, bn int
		if i < len(as) {
			an, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bn, _ = strconv.Atoi(bs[i])
		}
		if an != bn {
			return an < bn
		}
	}
	return false
}
