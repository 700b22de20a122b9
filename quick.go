package npubench

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/knights-analytics/npubench/backends"
	"github.com/knights-analytics/npubench/options"
)

// QuickCheck is the smoke test run before a full benchmark: it opens the first configured model,
// runs two inferences on a zero tensor and writes numbered steps to w. The last line written
// before a failure shows where the runtime stopped.
func QuickCheck(ctx context.Context, runtime backends.Runtime, opts *options.Options, w io.Writer) (err error) {
	if len(opts.Models) == 0 {
		return ErrNoModels
	}
	model := opts.Models[0]

	fmt.Fprintln(w, "=== NPU Quick Test ===")
	defer func() {
		if err != nil {
			fmt.Fprintf(w, "=== FAILED: %v ===\n", err)
		}
	}()

	if err = backends.PrepareEnvironment(opts.Environment); err != nil {
		return err
	}
	fmt.Fprintf(w, "Step 1: Runtime %s %s loaded\n", runtime.Name(), runtime.Version())
	fmt.Fprintf(w, "Step 2: Providers: %v\n", runtime.AvailableBackends())

	fmt.Fprintln(w, "Step 3: Creating session...")
	session, err := runtime.Open(model.Path, opts.Providers)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, session.Close())
	}()
	fmt.Fprintf(w, "Step 4: Session created. Provider: %s\n", session.Backend())

	req, err := backends.NewRequestForSession(session, backends.Shape(model.InputShape), backends.FillZeros, 0)
	if err != nil {
		return err
	}
	for i := 1; i <= 2; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(w, "Step %d: Running inference %d...\n", 3+2*i, i)
		outputs, runErr := session.Run(req)
		if runErr != nil {
			return runErr
		}
		var shape backends.Shape
		if len(outputs) > 0 {
			shape = outputs[0].Shape
		}
		fmt.Fprintf(w, "Step %d: Inference %d DONE! Shape: %s\n", 4+2*i, i, shape)
	}
	fmt.Fprintln(w, "=== ALL TESTS PASSED ===")
	return nil
}
