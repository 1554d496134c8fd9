package lms

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/athravseruwam07/clarus/core"
)

type (
	// Page is the cursor-style list shape returned by paginated LMS
	// endpoints: {"Next": string|null, "Objects": [...]}.
	Page struct {
		Next    *string           `json:"Next"`
		Objects []json.RawMessage `json:"Objects"`
	}

	// Client is the API collaborator boundary: a per-user connector holding
	// the opaque session credential. All paths are API-rooted, e.g.
	// "/d2l/api/le/1.73/calendar/events/myEvents/".
	Client interface {
		// Host returns the institution host this client talks to.
		Host() string
		// ListPage fetches a single page of a paginated resource.
		ListPage(ctx context.Context, path string) (Page, error)
		// Probe fetches a resource once and returns the raw body; used for
		// version negotiation and plain (non-paginated) list resources.
		Probe(ctx context.Context, path string) (json.RawMessage, error)
	}

	// CredentialProvider hands out the opaque session credential for a user.
	// The browser-automation login subsystem that produces it lives outside
	// this repo; it must return an *APIError with CodeSessionExpired when
	// no usable credential exists.
	CredentialProvider interface {
		SessionCookie(ctx context.Context, userID string) (string, error)
	}

	client struct {
		host   string
		userID string
		creds  CredentialProvider
		http   *http.Client
		log    core.Logger
	}
)

var _ Client = (*client)(nil)

func NewClient(conf *core.Config, userID string, creds CredentialProvider, logger core.Logger) Client {
	return &client{
		host:   conf.LMS.Host,
		userID: userID,
		creds:  creds,
		http:   &http.Client{Timeout: conf.LMS.Timeout},
		log:    logger,
	}
}

func (c *client) Host() string { return c.host }

func (c *client) get(ctx context.Context, path string) ([]byte, error) {
	cookie, err := c.creds.SessionCookie(ctx, c.userID)
	if err != nil {
		return nil, errors.Wrap(err, "getting session credential")
	}

	u := url.URL{Scheme: "https", Host: c.host, Path: path}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.Path = path[:i]
		u.RawQuery = path[i+1:]
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building LMS request")
	}
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling LMS")
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading LMS response")
	}
	if res.StatusCode >= 400 {
		c.log.Debug("LMS request failed", path, res.StatusCode)
		return nil, newAPIError(res.StatusCode, apiMessage(body))
	}
	return body, nil
}

func (c *client) ListPage(ctx context.Context, path string) (Page, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return Page{}, err
	}
	var page Page
	if err = json.Unmarshal(body, &page); err != nil {
		return Page{}, errors.Wrapf(err, "decoding list page %s", path)
	}
	return page, nil
}

func (c *client) Probe(ctx context.Context, path string) (json.RawMessage, error) {
	return c.get(ctx, path)
}

// apiMessage best-effort extracts the upstream error message.
func apiMessage(body []byte) string {
	var payload struct {
		Error   string `json:"Error"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
