package cli

import (
	"context"

	atunits "github.com/alecthomas/units"
	"github.com/pkg/errors"

	"github.com/gpualloc/allocsim/allocator"
	"github.com/gpualloc/allocsim/internal/units"
	"github.com/gpualloc/allocsim/replay"
	"github.com/gpualloc/allocsim/sizepolicy"
	"github.com/gpualloc/allocsim/trace"
)

type commandReplay struct {
	traceDir        string
	policy          string
	maxCapacity     atunits.Base2Bytes
	checkInvariants bool
	push            metricsPushFlags

	app *App
}

func (c *commandReplay) setup(app *App, parent commandParent) {
	c.app = app

	cmd := parent.Command("replay", "Replay a single liveness trace against the allocator engine")
	cmd.Arg("trace-dir", "Directory containing submemory_size_list.txt and submemory_liveness.txt").Required().StringVar(&c.traceDir)
	cmd.Flag("policy", "Size policy to reserve new segments with").Default(string(sizepolicy.RoundLargeName)).EnumVar(&c.policy,
		string(sizepolicy.RoundLargeName), string(sizepolicy.NextPow2Name), string(sizepolicy.GlobalMaxName))
	cmd.Flag("max-capacity", "Simulated device capacity; malloc past it reports OOM instead of reserving").BytesVar(&c.maxCapacity)
	cmd.Flag("check-invariants", "Verify allocator invariants after every malloc/free").Default("true").BoolVar(&c.checkInvariants)
	c.push.setup(cmd)
	cmd.Action(app.noArgsAction(c.run))
}

func (c *commandReplay) run(ctx context.Context) error {
	records, maxSize, err := trace.LoadDir(c.traceDir)
	if err != nil {
		return errors.Wrap(err, "loading trace")
	}

	policy, err := sizepolicy.New(sizepolicy.Name(c.policy), maxSize)
	if err != nil {
		return errors.Wrap(err, "building size policy")
	}

	opts := []allocator.Option{}
	if c.checkInvariants {
		opts = append(opts, allocator.WithInvariantChecks())
	}

	if c.maxCapacity > 0 {
		opts = append(opts, allocator.WithMaxCapacity(uint64(c.maxCapacity)))
	}

	reg := c.app.registry()
	if reg != nil {
		opts = append(opts, allocator.WithMetrics(reg))
	}

	engine := allocator.New(policy, opts...)

	report, err := replay.RunWithMetrics(engine, records, reg)
	if err != nil {
		return errors.Wrap(err, "replaying trace")
	}

	c.app.out.printStdout("records replayed:     %d\n", len(records))
	c.app.out.printStdout("segments created:     %d\n", report.SegmentCount)
	c.app.out.printStdout("max reserved size:    %s\n", units.BytesString(report.MaxReservedSize))

	return c.push.pushOnce()
}
