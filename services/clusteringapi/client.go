// Package clusteringapi is the client of the external clustering service.
package clusteringapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/pnl-akademik/disiplin/core"
	"github.com/pnl-akademik/disiplin/core/clustering"
)

const (
	serviceName      = "clustering service"
	maxErrorBodySize = 1024
)

type Client struct {
	url  string
	http *http.Client
}

var _ clustering.Analyzer = (*Client)(nil)

func NewClient(conf core.ClusteringConfig, httpClient ...*http.Client) *Client {
	c := &Client{url: strings.TrimSpace(conf.URL), http: &http.Client{Timeout: conf.Timeout}}
	if len(httpClient) > 0 && httpClient[0] != nil {
		c.http = httpClient[0]
	}
	return c
}

// Analyze uploads the workbook as the `file` field and the sheet as `sheet_name`.
// It fails with a *core.ConnectivityError when the service cannot be reached
// and with a *core.UpstreamError when it answers with a non-2xx status.
func (c *Client) Analyze(ctx context.Context, file io.Reader, filename, sheet string) ([]clustering.Row, error) {
	if c.url == "" {
		return nil, core.NewConfigurationError("CLUSTERING_URL", serviceName)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, errors.Wrap(err, "creating file part")
	}
	if _, err = io.Copy(part, file); err != nil {
		return nil, errors.Wrap(err, "copying workbook")
	}
	if err = w.WriteField("sheet_name", sheet); err != nil {
		return nil, errors.Wrap(err, "writing sheet name")
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewConnectivityError(serviceName, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
		return nil, core.NewUpstreamError(serviceName, res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rows []clustering.Row
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "decoding clustering rows")
	}
	return rows, nil
}
