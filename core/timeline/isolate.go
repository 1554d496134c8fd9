package timeline

import (
	"context"
	"encoding/json"

	"github.com/athravseruwam07/clarus/core/lms"
)

// batchFetchFunc fetches one resource for a batch of org units. Upstream
// returns an all-or-nothing 403 for a batched request if any member is
// forbidden.
type batchFetchFunc func(ctx context.Context, orgUnits []int) ([]json.RawMessage, error)

// isolateForbidden attempts the full batch, then bisects on authorization
// failure to locate exactly the forbidden subset while keeping complete
// results for every permitted unit. Costs O(log N) extra calls per
// forbidden unit. Any non-403 error propagates unchanged.
func isolateForbidden(ctx context.Context, orgUnits []int, fetch batchFetchFunc) (objects []json.RawMessage, forbidden []int, err error) {
	if len(orgUnits) == 0 {
		return nil, nil, nil
	}

	objects, err = fetch(ctx, orgUnits)
	if err == nil {
		return objects, nil, nil
	}
	if !lms.IsForbidden(err) {
		return nil, nil, err
	}
	if len(orgUnits) == 1 {
		return nil, []int{orgUnits[0]}, nil
	}

	mid := len(orgUnits) / 2
	leftObjs, leftForbidden, err := isolateForbidden(ctx, orgUnits[:mid], fetch)
	if err != nil {
		return nil, nil, err
	}
	rightObjs, rightForbidden, err := isolateForbidden(ctx, orgUnits[mid:], fetch)
	if err != nil {
		return nil, nil, err
	}
	return append(leftObjs, rightObjs...), append(leftForbidden, rightForbidden...), nil
}
