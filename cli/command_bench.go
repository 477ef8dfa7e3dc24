package cli

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/gpualloc/allocsim/allocator"
	"github.com/gpualloc/allocsim/internal/units"
	"github.com/gpualloc/allocsim/replay"
	"github.com/gpualloc/allocsim/sizepolicy"
	"github.com/gpualloc/allocsim/trace"
)

type commandBench struct {
	traceDirs []string
	policies  []string
	parallel  int
	push      metricsPushFlags

	app *App
}

func (c *commandBench) setup(app *App, parent commandParent) {
	c.app = app

	cmd := parent.Command("bench", "Replay one or more traces under every requested size policy and compare results")
	cmd.Arg("trace-dir", "Trace directories to replay").Required().StringsVar(&c.traceDirs)
	cmd.Flag("policy", "Size policies to compare (repeatable)").Default(
		string(sizepolicy.RoundLargeName), string(sizepolicy.NextPow2Name), string(sizepolicy.GlobalMaxName),
	).EnumsVar(&c.policies, string(sizepolicy.RoundLargeName), string(sizepolicy.NextPow2Name), string(sizepolicy.GlobalMaxName))
	cmd.Flag("parallel", "Maximum number of trace/policy combinations to replay concurrently").Default("4").IntVar(&c.parallel)
	c.push.setup(cmd)
	cmd.Action(app.noArgsAction(c.run))
}

type benchResult struct {
	traceDir        string
	policy          string
	segmentCount    int
	maxReservedSize uint64
}

func (c *commandBench) run(ctx context.Context) error {
	type job struct {
		traceDir string
		policy   string
	}

	var jobs []job //nolint:prealloc

	for _, dir := range c.traceDirs {
		for _, policy := range c.policies {
			jobs = append(jobs, job{traceDir: dir, policy: policy})
		}
	}

	results := make([]benchResult, len(jobs))

	grp, _ := errgroup.WithContext(ctx)
	grp.SetLimit(c.parallel)

	for i, j := range jobs {
		i, j := i, j

		grp.Go(func() error {
			records, maxSize, err := trace.LoadDir(j.traceDir)
			if err != nil {
				return errors.Wrapf(err, "loading trace %q", j.traceDir)
			}

			policy, err := sizepolicy.New(sizepolicy.Name(j.policy), maxSize)
			if err != nil {
				return errors.Wrapf(err, "policy %q for trace %q", j.policy, j.traceDir)
			}

			opts := []allocator.Option{allocator.WithInvariantChecks()}

			reg := c.app.registry()
			if reg != nil {
				opts = append(opts, allocator.WithMetrics(reg))
			}

			engine := allocator.New(policy, opts...)

			report, err := replay.RunWithMetrics(engine, records, reg)
			if err != nil {
				return errors.Wrapf(err, "replaying %q under %q", j.traceDir, j.policy)
			}

			results[i] = benchResult{
				traceDir:        j.traceDir,
				policy:          j.policy,
				segmentCount:    report.SegmentCount,
				maxReservedSize: report.MaxReservedSize,
			}

			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].traceDir != results[j].traceDir {
			return results[i].traceDir < results[j].traceDir
		}

		return results[i].policy < results[j].policy
	})

	c.app.out.printStdout("%-30s %-14s %10s %16s\n", "trace", "policy", "segments", "max reserved")

	for _, r := range results {
		c.app.out.printStdout("%-30s %-14s %10d %16s\n", r.traceDir, r.policy, r.segmentCount, units.BytesString(r.maxReservedSize))
	}

	return c.push.pushOnce()
}
