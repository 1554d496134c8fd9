package timeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/athravseruwam07/clarus/core/lms"
)

// maxPages hard-bounds how many continuation pages one resource fetch will
// follow; a well-formed upstream never comes close, so tripping it is
// treated as an upstream bug, not retried.
const maxPages = 100

const apiRoot = "/d2l/api/"

// fetchAllPages fetches a paginated resource end-to-end, following the
// cursor-style Next link until exhausted.
func fetchAllPages(ctx context.Context, client lms.Client, path string) ([]json.RawMessage, error) {
	var objects []json.RawMessage

	next := path
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, newSyncError(CodePaginationExcessive,
				fmt.Sprintf("more than %d pages for %s", maxPages, path))
		}

		p, err := client.ListPage(ctx, next)
		if err != nil {
			return nil, err
		}
		objects = append(objects, p.Objects...)

		if p.Next == nil || *p.Next == "" {
			return objects, nil
		}
		if next, err = resolveNext(client.Host(), *p.Next); err != nil {
			return nil, err
		}
	}
}

// resolveNext validates a continuation link. Next may be a relative path or
// an absolute URL on the institution's own host; anything not rooted under
// the API is rejected.
func resolveNext(host, next string) (string, error) {
	path := next
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		u, err := url.Parse(next)
		if err != nil {
			return "", errors.Wrap(newSyncError(CodeInvalidNext, next), "parsing Next link")
		}
		if !strings.EqualFold(u.Host, host) {
			return "", newSyncError(CodeHostMismatch, fmt.Sprintf("Next link points at %q, expected %q", u.Host, host))
		}
		path = u.Path
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
	}
	if !strings.HasPrefix(path, apiRoot) {
		return "", newSyncError(CodeInvalidNext, next)
	}
	return path, nil
}

// fetchPlainList fetches a non-paginated list resource and splits it into
// raw items for the source parsers.
func fetchPlainList(ctx context.Context, client lms.Client, path string) ([]json.RawMessage, error) {
	body, err := client.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err = json.Unmarshal(body, &items); err != nil {
		return nil, errors.Wrapf(err, "decoding list %s", path)
	}
	return items, nil
}
