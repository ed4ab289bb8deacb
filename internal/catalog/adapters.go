package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/leapstack-labs/galsynth/internal/httpclient"
	"github.com/leapstack-labs/galsynth/pkg/core"
)

// Band is one extracted catalog measurement in AB magnitudes, before
// extinction. A non-detection has Mag NaN and Err holding the limit.
type Band struct {
	Filter          string
	Mag             float64
	Err             float64
	VegaMag         *float64
	SystematicError float64
}

// missingSentinel marks catalog placeholders such as PS1's -999.
const missingSentinel = -999

// PointSourceSystematicError reflects the lower fidelity of the Gaia 2MASS cross-match.
const PointSourceSystematicError = 0.2

// Vega zero points in Jansky.
const (
	ZeroPoint2MASSJ  = 1594.0
	ZeroPoint2MASSH  = 1024.0
	ZeroPoint2MASSKs = 666.8
	ZeroPointW1      = 309.5
	ZeroPointW2      = 171.8
	ZeroPointW3      = 31.7
	ZeroPointW4      = 8.4
)

// VegaToAB returns the offset added to a Vega magnitude with the given zero point.
func VegaToAB(zeroPointJy float64) float64 {
	return -2.5 * math.Log10(zeroPointJy/3631)
}

// column maps one catalog magnitude/error pair to a bandpass.
type column struct {
	filter string
	mag    string
	err    string
	zpJy   float64 // zero means the catalog is already AB
}

func value(row Row, col string) (float64, bool) {
	v, ok := row.Float(col)
	if !ok || v <= missingSentinel {
		return 0, false
	}
	return v, true
}

// extract applies the non-detection rule: a masked magnitude drops the band,
// a masked error keeps it with Mag NaN and the magnitude moved into Err.
func extract(row Row, cols []column, systematic float64) []Band {
	bands := make([]Band, 0, len(cols))
	for _, c := range cols {
		mag, ok := value(row, c.mag)
		if !ok {
			continue
		}
		b := Band{Filter: c.filter, SystematicError: systematic}
		ab := mag
		if c.zpJy > 0 {
			vega := mag
			b.VegaMag = &vega
			ab = mag + VegaToAB(c.zpJy)
		}
		if e, ok := value(row, c.err); ok {
			b.Mag, b.Err = ab, e
		} else {
			b.Mag, b.Err = math.NaN(), ab
		}
		bands = append(bands, b)
	}
	return bands
}

var (
	sdssColumns = sdssLike(func(b string) (string, string) {
		return "cModelMag_" + b, "cModelMagErr_" + b
	}, "ugriz")

	ps1Columns = sdssLike(func(b string) (string, string) {
		return b + "MeanKronMag", b + "MeanKronMagStd"
	}, "griz")

	galexColumns = []column{
		{filter: "galex_FUV", mag: "fuv_mag", err: "fuv_magerr"},
		{filter: "galex_NUV", mag: "nuv_mag", err: "nuv_magerr"},
	}

	xscColumns = []column{
		{filter: "twomass_J", mag: "j_m_k20fe", err: "j_msig_k20fe", zpJy: ZeroPoint2MASSJ},
		{filter: "twomass_H", mag: "h_m_k20fe", err: "h_msig_k20fe", zpJy: ZeroPoint2MASSH},
		{filter: "twomass_Ks", mag: "k_m_k20fe", err: "k_msig_k20fe", zpJy: ZeroPoint2MASSKs},
	}

	pscColumns = []column{
		{filter: "twomass_J", mag: "j_m", err: "j_msigcom", zpJy: ZeroPoint2MASSJ},
		{filter: "twomass_H", mag: "h_m", err: "h_msigcom", zpJy: ZeroPoint2MASSH},
		{filter: "twomass_Ks", mag: "ks_m", err: "ks_msigcom", zpJy: ZeroPoint2MASSKs},
	}

	wiseColumns = []column{
		{filter: "wise_w1", mag: "w1mpro", err: "w1sigmpro", zpJy: ZeroPointW1},
		{filter: "wise_w2", mag: "w2mpro", err: "w2sigmpro", zpJy: ZeroPointW2},
		{filter: "wise_w3", mag: "w3mpro", err: "w3sigmpro", zpJy: ZeroPointW3},
		{filter: "wise_w4", mag: "w4mpro", err: "w4sigmpro", zpJy: ZeroPointW4},
	}
)

func sdssLike(names func(b string) (string, string), bands string) []column {
	cols := make([]column, 0, len(bands))
	for _, b := range bands {
		mag, err := names(string(b))
		cols = append(cols, column{filter: "sdss_" + string(b) + "0", mag: mag, err: err})
	}
	return cols
}

func columnNames(cols []column) []string {
	out := make([]string, 0, 2*len(cols))
	for _, c := range cols {
		out = append(out, c.mag, c.err)
	}
	return out
}

// SDSSQuery selects the ten nearest PhotoObj rows.
func SDSSQuery(pos core.Position, radiusArcmin float64) string {
	cols := make([]string, 0, 2+2*len(sdssColumns))
	cols = append(cols, "p.ra", "p.dec")
	for _, c := range columnNames(sdssColumns) {
		cols = append(cols, "p."+c)
	}
	return fmt.Sprintf("SELECT TOP 10 %s, n.distance FROM fGetNearbyObjEq(%s, %s, %s) AS n "+
		"JOIN PhotoObj AS p ON n.objID = p.objID ORDER BY n.distance",
		strings.Join(cols, ", "), formatFloat(pos.RA), formatFloat(pos.Dec), formatFloat(radiusArcmin))
}

func coneADQL(table string, cols []string) func(core.Position, float64) string {
	return func(pos core.Position, radiusDeg float64) string {
		return fmt.Sprintf("SELECT %s FROM %s WHERE CONTAINS(POINT('ICRS', ra, dec), CIRCLE('ICRS', %s, %s, %s)) = 1",
			strings.Join(cols, ", "), table, formatFloat(pos.RA), formatFloat(pos.Dec), formatFloat(radiusDeg))
	}
}

// XSCQuery selects 2MASS extended sources in a cone.
var XSCQuery = coneADQL("fp_xsc", append([]string{"ra", "dec"}, columnNames(xscColumns)...))

// WISEQuery selects AllWISE sources in a cone.
var WISEQuery = coneADQL("allwise_p3as_psd", append([]string{"ra", "dec"}, columnNames(wiseColumns)...))

// PSCQuery selects 2MASS point sources cross-matched to Gaia DR3 with a
// unique neighbour.
func PSCQuery(pos core.Position, radiusDeg float64) string {
	cols := []string{"g.ra", "g.dec"}
	for _, c := range columnNames(pscColumns) {
		cols = append(cols, "t."+c)
	}
	return fmt.Sprintf(`SELECT %s
FROM gaiadr3.gaia_source AS g
JOIN gaiadr3.tmass_psc_xsc_best_neighbour AS xm USING (source_id)
JOIN gaiadr3.tmass_psc_xsc_join AS xj ON xm.original_ext_source_id = xj.original_psc_source_id
JOIN gaiadr1.tmass_original_valid AS t ON xj.original_psc_source_id = t.designation
WHERE CONTAINS(POINT('ICRS', g.ra, g.dec), CIRCLE('ICRS', %s, %s, %s)) = 1
AND xm.number_of_mates = 0 AND xm.number_of_neighbours = 1`,
		strings.Join(cols, ", "), formatFloat(pos.RA), formatFloat(pos.Dec), formatFloat(radiusDeg))
}

// PS1Columns are requested from the PS1 DR2 mean-object table.
var PS1Columns = append([]string{"raMean", "decMean"}, columnNames(ps1Columns)...)

// NewPS1Querier queries PS1 DR2 mean objects.
func NewPS1Querier(client *httpclient.Client, baseURL string) Querier {
	return NewMASTCatalogQuerier(client, baseURL, PS1Columns, nil)
}

// Adapter turns one catalog into a Strategy.
type Adapter struct {
	name       string
	querier    Querier
	raCol      string
	decCol     string
	columns    []column
	systematic float64
	logger     *slog.Logger
}

// Name implements Strategy.
func (a *Adapter) Name() string { return a.name }

// Bands implements Strategy. Transport failures and empty results both yield
// core.ErrNoData so the caller can move on. A matched row whose bands are all
// masked is still a match and returns an empty slice.
func (a *Adapter) Bands(ctx context.Context, pos core.Position, radiusArcsec float64) ([]Band, error) {
	rows, err := a.querier.Query(ctx, pos, radiusArcsec)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.logger.Warn("catalog query failed, continuing without it",
			slog.String("catalog", a.name), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w: %w", a.name, core.ErrNoData, err)
	}
	if len(rows) == 0 {
		a.logger.Info("no data found", slog.String("catalog", a.name))
		return nil, fmt.Errorf("%s: %w", a.name, core.ErrNoData)
	}

	row := rows[0]
	if len(rows) > 1 {
		var sep float64
		row, sep = Nearest(rows, pos, a.raCol, a.decCol)
		a.logger.Info("ambiguous match, using nearest row",
			slog.String("catalog", a.name), slog.Int("rows", len(rows)), slog.Float64("separation_arcsec", sep))
	}

	bands := extract(row, a.columns, a.systematic)
	a.logger.Debug("catalog matched", slog.String("catalog", a.name), slog.Int("bands", len(bands)))
	return bands, nil
}

func newAdapter(name string, q Querier, raCol, decCol string, cols []column, systematic float64, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		name: name, querier: q, raCol: raCol, decCol: decCol,
		columns: cols, systematic: systematic, logger: logger,
	}
}

// Surveys names the per-catalog adapters.
const (
	SurveySDSS     = "sdss"
	SurveyPS1      = "ps1"
	SurveyGALEX    = "galex"
	Survey2MASSXSC = "2mass_xsc"
	Survey2MASSPSC = "2mass_psc"
	SurveyWISE     = "wise"
)

// Queriers holds one querier per survey so tests can swap transports.
type Queriers struct {
	SDSS    Querier
	PS1     Querier
	GALEX   Querier
	TwoMXSC Querier
	TwoMPSC Querier
	AllWISE Querier
}

// NewQueriers builds the HTTP queriers for endpoints.
func NewQueriers(client *httpclient.Client, ep Endpoints) Queriers {
	return Queriers{
		SDSS:    NewSkyServerQuerier(client, ep.SDSS, SDSSQuery),
		PS1:     NewPS1Querier(client, ep.PS1),
		GALEX:   NewMASTInvokeQuerier(client, ep.MAST, "Mast.Galex.Catalog"),
		TwoMXSC: NewTAPQuerier(client, ep.IRSA, XSCQuery),
		TwoMPSC: NewTAPQuerier(client, ep.Gaia, PSCQuery),
		AllWISE: NewTAPQuerier(client, ep.IRSA, WISEQuery),
	}
}

// Plan returns the fixed acquisition order:
// optical (SDSS, else PS1), GALEX, NIR (XSC, else PSC), WISE.
func (q Queriers) Plan(logger *slog.Logger) []Strategy {
	return []Strategy{
		FirstOf("optical",
			newAdapter(SurveySDSS, q.SDSS, "ra", "dec", sdssColumns, 0, logger),
			newAdapter(SurveyPS1, q.PS1, "raMean", "decMean", ps1Columns, 0, logger),
		),
		newAdapter(SurveyGALEX, q.GALEX, "ra", "dec", galexColumns, 0, logger),
		FirstOf("nir",
			newAdapter(Survey2MASSXSC, q.TwoMXSC, "ra", "dec", xscColumns, 0, logger),
			newAdapter(Survey2MASSPSC, q.TwoMPSC, "ra", "dec", pscColumns, PointSourceSystematicError, logger),
		),
		newAdapter(SurveyWISE, q.AllWISE, "ra", "dec", wiseColumns, 0, logger),
	}
}

// HostFinder picks the nearest PS1 object around a position.
type HostFinder struct {
	querier Querier
	logger  *slog.Logger
}

// NewHostFinder creates a host finder over a PS1 querier.
func NewHostFinder(q Querier, logger *slog.Logger) *HostFinder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HostFinder{querier: q, logger: logger}
}

// Nearest returns the position of the closest PS1 object within radiusArcsec,
// or core.ErrNoData when there is none.
func (h *HostFinder) Nearest(ctx context.Context, pos core.Position, radiusArcsec float64) (core.Position, error) {
	rows, err := h.querier.Query(ctx, pos, radiusArcsec)
	if err != nil {
		return core.Position{}, fmt.Errorf("failed to query host candidates: %w", err)
	}
	if len(rows) > 1 {
		h.logger.Warn("multiple host candidates, using nearest", slog.Int("candidates", len(rows)))
	}
	row, _ := Nearest(rows, pos, "raMean", "decMean")
	if row == nil {
		return core.Position{}, fmt.Errorf("no host within %.1f arcsec: %w", radiusArcsec, core.ErrNoData)
	}
	host, ok := row.Position("raMean", "decMean")
	if !ok {
		return core.Position{}, errors.Join(core.ErrNoData, errors.New("host candidate has no coordinates"))
	}
	return host, nil
}
