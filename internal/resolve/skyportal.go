// Package resolve turns a transient name into the host galaxy to fit.
//
// Source coordinates come from SkyPortal when a token is configured and the
// instance answers, otherwise from a Transient Name Server search. The host
// is the nearest Pan-STARRS object around the transient.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// DefaultSkyPortalURL is the public Fritz instance.
const DefaultSkyPortalURL = "https://fritz.science/api/"

// SourceInfo is what a resolver knows about a transient.
type SourceInfo struct {
	Name     string            `json:"name"`
	RA       float64           `json:"ra"`
	Dec      float64           `json:"dec"`
	Redshift *float64          `json:"redshift"`
	Origin   string            `json:"origin"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Position validates and returns the transient position.
func (s *SourceInfo) Position() (core.Position, error) {
	return core.NewPosition(s.RA, s.Dec)
}

var upper = cases.Upper(language.Und)

// IsZTFName reports whether name is a ZTF internal designation.
func IsZTFName(name string) bool {
	prefix := name
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return upper.String(prefix) == "ZTF"
}

// StripTNSName drops the prefix of a TNS designation ("SN 2020abc" and
// "AT2020abc" both become "2020abc").
func StripTNSName(name string) (string, error) {
	idx := strings.IndexFunc(name, unicode.IsDigit)
	if idx < 0 {
		return "", core.Validationf("%q is not a TNS designation", name)
	}
	return strings.TrimSpace(name[idx:]), nil
}

// SkyPortal is a token-authenticated SkyPortal API client.
type SkyPortal struct {
	base   string
	token  string
	http   *httpclient.Client
	logger *slog.Logger
}

// NewSkyPortal creates a client for the instance at baseURL.
func NewSkyPortal(baseURL, token string, cfg httpclient.Config, logger *slog.Logger) *SkyPortal {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if baseURL == "" {
		baseURL = DefaultSkyPortalURL
	}
	return &SkyPortal{
		base:   baseURL,
		token:  token,
		http:   httpclient.New(cfg, httpclient.WithLogger(logger)),
		logger: logger,
	}
}

// HasToken reports whether a token is configured.
func (s *SkyPortal) HasToken() bool {
	return s != nil && s.token != ""
}

func (s *SkyPortal) get(ctx context.Context, endpoint string) (httpclient.Response, error) {
	u, err := url.JoinPath(s.base, endpoint)
	if err != nil {
		return httpclient.Response{}, fmt.Errorf("invalid SkyPortal URL %q: %w", s.base, err)
	}
	header := http.Header{}
	header.Set("Authorization", "token "+s.token)
	return s.http.Get(ctx, u, nil, header)
}

// Ping reports whether the instance answers its config endpoint.
func (s *SkyPortal) Ping(ctx context.Context) bool {
	if !s.HasToken() {
		return false
	}
	if _, err := s.get(ctx, "config"); err != nil {
		s.logger.Error("error pinging SkyPortal", slog.Any("error", err))
		return false
	}
	return true
}

type skyPortalSource struct {
	ID       string   `json:"id"`
	RA       float64  `json:"ra"`
	Dec      float64  `json:"dec"`
	Redshift *float64 `json:"redshift"`
}

// Source looks a transient up by ZTF or TNS name.
func (s *SkyPortal) Source(ctx context.Context, name string) (*SourceInfo, error) {
	if !s.HasToken() {
		return nil, fmt.Errorf("%w: no SkyPortal token configured", core.ErrExternalService)
	}
	key := name
	if !IsZTFName(name) {
		stripped, err := StripTNSName(name)
		if err != nil {
			return nil, err
		}
		key = stripped
	}

	resp, err := s.get(ctx, "sources/"+key)
	if err != nil {
		return nil, fmt.Errorf("failed to query SkyPortal for %s: %w", name, err)
	}

	var body struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    skyPortalSource `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode SkyPortal response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return nil, fmt.Errorf("%w: SkyPortal: %s", core.ErrExternalService, body.Message)
	}

	return &SourceInfo{
		Name:     name,
		RA:       body.Data.RA,
		Dec:      body.Data.Dec,
		Redshift: body.Data.Redshift,
		Origin:   "skyportal",
		Fields:   map[string]string{"id": body.Data.ID},
	}, nil
}
