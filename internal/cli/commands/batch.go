package commands

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/galsynth/internal/galaxy"
)

// Target is one entry of a batch file. Entries with coordinates are used
// as given; entries with only a name are resolved as transients.
type Target struct {
	Name     string   `yaml:"name"`
	RA       string   `yaml:"ra"`
	Dec      string   `yaml:"dec"`
	Redshift *float64 `yaml:"redshift"`
}

// BatchFile is the YAML document read by the batch command.
type BatchFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadBatchFile reads and validates a batch file.
func LoadBatchFile(path string) (*BatchFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	var f BatchFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	if len(f.Targets) == 0 {
		return nil, fmt.Errorf("batch file %s lists no targets", path)
	}
	for i, t := range f.Targets {
		hasPos := t.RA != "" || t.Dec != ""
		switch {
		case hasPos && (t.RA == "" || t.Dec == ""):
			return nil, fmt.Errorf("target %d: ra and dec must be given together", i+1)
		case !hasPos && t.Name == "":
			return nil, fmt.Errorf("target %d: needs a name or ra/dec", i+1)
		}
	}
	return &f, nil
}

// NewBatchCommand creates the batch command.
func NewBatchCommand() *cobra.Command {
	var useCache func() bool

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run the pipeline over a list of targets",
		Long: `Process every target of a YAML batch file, running up to
--concurrency galaxies at a time. A failing target does not stop the others;
the command fails if any target failed.

File format:

  targets:
    - name: 2020abc             # resolved through SkyPortal/TNS
    - ra: 314.2622542
      dec: 14.2043667
      name: host-a              # optional
      redshift: 0.0312          # optional`,
		Example: `  galsynth batch targets.yaml --concurrency 4`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], useCache())
		},
	}
	useCache = cacheFlags(cmd)

	return cmd
}

func runBatch(cmd *cobra.Command, path string, useCache bool) error {
	file, err := LoadBatchFile(path)
	if err != nil {
		return err
	}
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	svc, cleanup, err := cmdCtx.Services(serviceNeeds{fit: true})
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	var (
		galaxies []*galaxy.Galaxy
		report   []batchJSON
		errs     []error
	)
	for i, t := range file.Targets {
		if t.RA == "" {
			g, err := svc.Resolver.ByName(ctx, t.Name, useCache)
			if err != nil {
				err = svc.Pipeline.RecordResolveFailure(t.Name, err)
				report = append(report, batchJSON{Source: t.Name, Status: "failed", Error: err.Error()})
				errs = append(errs, err)
				continue
			}
			galaxies = append(galaxies, g)
			continue
		}
		g, err := galaxyFromArgs([]string{t.RA, t.Dec, t.Name}, t.Redshift)
		if err != nil {
			err = fmt.Errorf("target %s: %w", targetLabel(i, t), err)
			report = append(report, batchJSON{Source: targetLabel(i, t), Status: "failed", Error: err.Error()})
			errs = append(errs, err)
			continue
		}
		galaxies = append(galaxies, g)
	}

	results, runErr := svc.Pipeline.RunBatch(ctx, galaxies, useCache)
	for _, res := range results {
		entry := batchJSON{Source: res.Galaxy.SourceName(), Status: "completed"}
		if res.Outcome != nil {
			entry.RunID = res.Outcome.RunID
		}
		if res.Err != nil {
			entry.Status, entry.Error = "failed", res.Err.Error()
		}
		report = append(report, entry)
	}
	if runErr != nil {
		errs = append(errs, runErr)
	}

	if err := renderBatch(cmdCtx.Renderer, report); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func targetLabel(i int, t Target) string {
	if t.Name != "" {
		return t.Name
	}
	return "#" + strconv.Itoa(i+1)
}
