// Command allocsim replays GPU submemory liveness traces against a
// simulated caching allocator.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/gpualloc/allocsim/allocator"
	"github.com/gpualloc/allocsim/cli"
	"github.com/gpualloc/allocsim/repo/logging"
)

// exitInvariantViolation is the exit status reserved for allocator invariant
// violations, distinct from the status 1 kingpin uses for every other error.
const exitInvariantViolation = 3

func main() {
	app := kingpin.New("allocsim", "GPU caching allocator simulator")

	a := cli.NewApp()
	a.Attach(app)

	cmd, err := app.Parse(os.Args[1:])
	if allocator.IsInvariantViolation(err) {
		logging.Module("allocsim").Errorw("invariant violation, halting", "error", err)
		os.Exit(exitInvariantViolation)
	}

	kingpin.MustParse(cmd, err)
}
