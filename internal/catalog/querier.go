package catalog

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Querier runs a cone search and returns the matching rows, possibly none.
type Querier interface {
	Query(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error)
}

// QuerierFunc adapts a function to Querier.
type QuerierFunc func(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error)

// Query implements Querier.
func (f QuerierFunc) Query(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error) {
	return f(ctx, pos, radiusArcsec)
}

// Endpoints holds the base URLs of the remote services.
type Endpoints struct {
	SDSS string `koanf:"sdss"`
	PS1  string `koanf:"ps1"`
	MAST string `koanf:"mast"`
	IRSA string `koanf:"irsa"`
	Gaia string `koanf:"gaia"`
}

// DefaultEndpoints returns the public service URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		SDSS: "https://skyserver.sdss.org/dr18/SkyServerWS/SearchTools/SqlSearch",
		PS1:  "https://catalogs.mast.stsci.edu/api/v0.1/panstarrs/dr2/mean.csv",
		MAST: "https://mast.stsci.edu/api/v0/invoke",
		IRSA: "https://irsa.ipac.caltech.edu/TAP/sync",
		Gaia: "https://gea.esac.esa.int/tap-server/tap/sync",
	}
}

// TAPQuerier runs a synchronous ADQL query against an IVOA TAP service.
type TAPQuerier struct {
	client  *httpclient.Client
	baseURL string
	adql    func(pos core.Position, radiusDeg float64) string
}

// NewTAPQuerier creates a TAP querier; adql renders the query for a cone.
func NewTAPQuerier(client *httpclient.Client, baseURL string, adql func(pos core.Position, radiusDeg float64) string) *TAPQuerier {
	return &TAPQuerier{client: client, baseURL: baseURL, adql: adql}
}

// Query implements Querier.
func (q *TAPQuerier) Query(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error) {
	form := url.Values{
		"REQUEST": {"doQuery"},
		"LANG":    {"ADQL"},
		"FORMAT":  {"csv"},
		"QUERY":   {q.adql(pos, core.ArcsecToDeg(radiusArcsec))},
	}
	resp, err := q.client.PostForm(ctx, q.baseURL, form, nil)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(resp.Body))
}

// SkyServerQuerier runs SQL against the SDSS SkyServer search endpoint.
type SkyServerQuerier struct {
	client  *httpclient.Client
	baseURL string
	sql     func(pos core.Position, radiusArcmin float64) string
}

// NewSkyServerQuerier creates an SDSS querier.
func NewSkyServerQuerier(client *httpclient.Client, baseURL string, sql func(pos core.Position, radiusArcmin float64) string) *SkyServerQuerier {
	return &SkyServerQuerier{client: client, baseURL: baseURL, sql: sql}
}

// Query implements Querier.
func (q *SkyServerQuerier) Query(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error) {
	params := url.Values{
		"cmd":    {q.sql(pos, radiusArcsec/60)},
		"format": {"csv"},
	}
	resp, err := q.client.Get(ctx, q.baseURL, params, nil)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(resp.Body))
}

// MASTCatalogQuerier queries the MAST catalogs REST API (e.g. PS1 DR2 mean objects).
type MASTCatalogQuerier struct {
	client  *httpclient.Client
	baseURL string
	columns []string
	extra   url.Values
}

// NewMASTCatalogQuerier creates a MAST catalogs querier returning the given columns.
func NewMASTCatalogQuerier(client *httpclient.Client, baseURL string, columns []string, extra url.Values) *MASTCatalogQuerier {
	return &MASTCatalogQuerier{client: client, baseURL: baseURL, columns: columns, extra: extra}
}

// Query implements Querier.
func (q *MASTCatalogQuerier) Query(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error) {
	params := url.Values{
		"ra":      {formatFloat(pos.RA)},
		"dec":     {formatFloat(pos.Dec)},
		"radius":  {formatFloat(core.ArcsecToDeg(radiusArcsec))},
		"columns": {"[" + strings.Join(q.columns, ",") + "]"},
	}
	for k, vs := range q.extra {
		params[k] = vs
	}
	resp, err := q.client.Get(ctx, q.baseURL, params, nil)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(resp.Body))
}

// MASTInvokeQuerier calls a MAST portal service such as Mast.Galex.Catalog.
type MASTInvokeQuerier struct {
	client   *httpclient.Client
	baseURL  string
	service  string
	pageSize int
}

// NewMASTInvokeQuerier creates a MAST portal querier for service.
func NewMASTInvokeQuerier(client *httpclient.Client, baseURL, service string) *MASTInvokeQuerier {
	return &MASTInvokeQuerier{client: client, baseURL: baseURL, service: service, pageSize: 500}
}

type mastRequest struct {
	Service  string         `json:"service"`
	Params   map[string]any `json:"params"`
	Format   string         `json:"format"`
	PageSize int            `json:"pagesize"`
	Page     int            `json:"page"`
}

type mastResponse struct {
	Status string           `json:"status"`
	Msg    string           `json:"msg"`
	Data   []map[string]any `json:"data"`
}

// Query implements Querier.
func (q *MASTInvokeQuerier) Query(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Row, error) {
	req, err := json.Marshal(mastRequest{
		Service: q.service,
		Params: map[string]any{
			"ra":     pos.RA,
			"dec":    pos.Dec,
			"radius": core.ArcsecToDeg(radiusArcsec),
		},
		Format:   "json",
		PageSize: q.pageSize,
		Page:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode MAST request: %w", err)
	}

	resp, err := q.client.PostForm(ctx, q.baseURL, url.Values{"request": {string(req)}}, nil)
	if err != nil {
		return nil, err
	}
	return parseMASTJSON(resp.Body)
}

func parseMASTJSON(body []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var out mastResponse
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode MAST response: %w", err)
	}
	if out.Status != "" && !strings.EqualFold(out.Status, "COMPLETE") {
		return nil, fmt.Errorf("MAST request not complete: status=%s msg=%s", out.Status, out.Msg)
	}

	rows := make([]Row, 0, len(out.Data))
	for _, rec := range out.Data {
		row := make(Row, len(rec))
		for k, v := range rec {
			switch x := v.(type) {
			case nil:
			case json.Number:
				row[k] = x.String()
			case string:
				row[k] = x
			case bool:
				row[k] = fmt.Sprint(x)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseCSV reads a header line followed by records. Lines starting with '#'
// (SkyServer table markers, TAP comments) are skipped.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%.7f", v)
}
