package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"testing"
)

// scriptedBatchFetch returns one object per permitted org unit and an
// all-or-nothing 403 when any requested unit is forbidden, matching how the
// upstream batched endpoint behaves.
func scriptedBatchFetch(forbidden map[int]bool, calls *int) batchFetchFunc {
	return func(_ context.Context, orgUnits []int) ([]json.RawMessage, error) {
		*calls++
		for _, ou := range orgUnits {
			if forbidden[ou] {
				return nil, apiErr(http.StatusForbidden)
			}
		}
		objects := make([]json.RawMessage, len(orgUnits))
		for i, ou := range orgUnits {
			objects[i] = json.RawMessage(strconv.Itoa(ou))
		}
		return objects, nil
	}
}

func TestIsolateForbidden(t *testing.T) {
	tests := []struct {
		name          string
		orgUnits      []int
		forbidden     []int
		wantObjects   int
		wantForbidden []int
		maxCalls      int
	}{
		{
			name:        "all permitted is a single call",
			orgUnits:    []int{1, 2, 3, 4},
			wantObjects: 4,
			maxCalls:    1,
		},
		{
			name:          "two forbidden among eight",
			orgUnits:      []int{1, 2, 3, 4, 5, 6, 7, 8},
			forbidden:     []int{3, 7},
			wantObjects:   6,
			wantForbidden: []int{3, 7},
			maxCalls:      11,
		},
		{
			name:          "single forbidden unit",
			orgUnits:      []int{42},
			forbidden:     []int{42},
			wantObjects:   0,
			wantForbidden: []int{42},
			maxCalls:      1,
		},
		{
			name:          "everything forbidden",
			orgUnits:      []int{1, 2, 3},
			forbidden:     []int{1, 2, 3},
			wantObjects:   0,
			wantForbidden: []int{1, 2, 3},
			maxCalls:      2*3 + 1,
		},
		{
			name:     "empty input",
			orgUnits: nil,
			maxCalls: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forbidden := make(map[int]bool, len(tt.forbidden))
			for _, ou := range tt.forbidden {
				forbidden[ou] = true
			}
			var calls int

			objects, gotForbidden, err := isolateForbidden(context.Background(), tt.orgUnits, scriptedBatchFetch(forbidden, &calls))
			if err != nil {
				t.Fatalf("isolateForbidden() error = %v", err)
			}
			if len(objects) != tt.wantObjects {
				t.Errorf("len(objects) = %d, want %d", len(objects), tt.wantObjects)
			}
			if !reflect.DeepEqual(gotForbidden, tt.wantForbidden) {
				t.Errorf("forbidden = %v, want %v", gotForbidden, tt.wantForbidden)
			}
			if calls > tt.maxCalls {
				t.Errorf("fetch calls = %d, want at most %d", calls, tt.maxCalls)
			}
		})
	}
}

func TestIsolateForbiddenPropagatesOtherErrors(t *testing.T) {
	var calls int
	fetch := func(_ context.Context, orgUnits []int) ([]json.RawMessage, error) {
		calls++
		if calls == 1 {
			return nil, apiErr(http.StatusForbidden) // force bisection
		}
		return nil, apiErr(http.StatusInternalServerError)
	}

	_, _, err := isolateForbidden(context.Background(), []int{1, 2, 3, 4}, fetch)
	if err == nil {
		t.Fatal("isolateForbidden() error = nil, want upstream error")
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2 (abort on first non-403)", calls)
	}
}
