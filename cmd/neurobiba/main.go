// Command neurobiba creates, trains and runs sigmoid weight stacks.
//
// To create: `go run ./cmd/neurobiba init --sizes=2,3,1 --bias --weights=xor`
//
// To train: `go run ./cmd/neurobiba train --weights=xor --data=xor.npz --epochs=5000`
//
// To infer: `go run ./cmd/neurobiba infer --weights=xor --input=0,1`
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"runtime/pprof"

	"github.com/ahmedtd/neurobiba/toolbox"
	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&InitCommand{}, "")
	subcommands.Register(&TrainCommand{}, "")
	subcommands.Register(&InferCommand{}, "")
	subcommands.Register(&ReverseCommand{}, "")
	subcommands.Register(&ExportCommand{}, "numpy")
	subcommands.Register(&ImportCommand{}, "numpy")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

// stdout receives the vectors printed by infer and reverse.
var stdout io.Writer = os.Stdout

func requireWeights(name string) error {
	if name == "" {
		return fmt.Errorf("--weights is required")
	}
	return nil
}

type InitCommand struct {
	sizes       intList
	bias        bool
	seed        int64
	weightsName string
}

var _ subcommands.Command = (*InitCommand)(nil)

func (*InitCommand) Name() string {
	return "init"
}

func (*InitCommand) Synopsis() string {
	return "Create a randomly initialized weight stack"
}

func (*InitCommand) Usage() string {
	return `init --sizes=3,10,2 [--bias] [--seed=N] --weights=NAME
`
}

func (c *InitCommand) SetFlags(f *flag.FlagSet) {
	f.Var(&c.sizes, "sizes", "Comma-separated layer sizes, input layer first")
	f.BoolVar(&c.bias, "bias", false, "Add a bias unit to every layer")
	f.Int64Var(&c.seed, "seed", 12345, "Random seed for the initial weights")
	f.StringVar(&c.weightsName, "weights", "", "Weight file name, without the .dat extension")
}

func (c *InitCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *InitCommand) executeErr(ctx context.Context) error {
	if err := requireWeights(c.weightsName); err != nil {
		return err
	}

	r := rand.New(rand.NewSource(c.seed))
	ws, err := toolbox.NewWeightStack(c.sizes, c.bias, r)
	if err != nil {
		return fmt.Errorf("while creating weight stack: %w", err)
	}

	if err := toolbox.Save(ws, c.weightsName); err != nil {
		return fmt.Errorf("while saving weights: %w", err)
	}

	log.Printf("Saved weight stack sizes=%v bias=%v to %s.dat", ws.Sizes(), ws.Bias, c.weightsName)
	return nil
}

type TrainCommand struct {
	weightsName string
	dataFile    string

	alpha    float64
	epochs   int
	logEvery int
	seed     int64

	cpuProfileFile string
}

var _ subcommands.Command = (*TrainCommand)(nil)

func (*TrainCommand) Name() string {
	return "train"
}

func (*TrainCommand) Synopsis() string {
	return "Train a weight stack on an npz dataset"
}

func (*TrainCommand) Usage() string {
	return `train --weights=NAME --data=FILE.npz [--alpha=0.9] [--epochs=1000]

The dataset holds float64 arrays x (samples, inputs) and y (samples, outputs),
with every value already normalized to [0, 1].
`
}

func (c *TrainCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsName, "weights", "", "Weight file name, without the .dat extension; updated in place")
	f.StringVar(&c.dataFile, "data", "", "Path to the npz dataset")

	f.Float64Var(&c.alpha, "alpha", float64(toolbox.DefaultAlpha), "Learning rate")
	f.IntVar(&c.epochs, "epochs", 1000, "Number of passes over the dataset")
	f.IntVar(&c.logEvery, "log-every", 100, "Log progress every N epochs")
	f.Int64Var(&c.seed, "seed", 12345, "Random seed for shuffling samples between epochs")

	f.StringVar(&c.cpuProfileFile, "cpu-profile", "", "Write a CPU profile")
}

func (c *TrainCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *TrainCommand) executeErr(ctx context.Context) error {
	if err := requireWeights(c.weightsName); err != nil {
		return err
	}
	if c.logEvery < 1 {
		return fmt.Errorf("--log-every must be positive")
	}

	if c.cpuProfileFile != "" {
		f, err := os.Create(c.cpuProfileFile)
		if err != nil {
			return fmt.Errorf("while creating CPU profile file: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("while starting CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	ws, err := toolbox.Load(c.weightsName)
	if err != nil {
		return fmt.Errorf("while loading weights: %w", err)
	}

	samples, err := toolbox.ReadDataset(c.dataFile)
	if err != nil {
		return fmt.Errorf("while loading dataset: %w", err)
	}
	log.Printf("Loaded %d samples", len(samples))

	r := rand.New(rand.NewSource(c.seed))
	alpha := float32(c.alpha)

	var timings toolbox.TrainTimings
	for epoch := 0; epoch < c.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		for _, s := range samples {
			if err := ws.TrainStep(s.Input, s.Target, alpha, &timings); err != nil {
				return fmt.Errorf("while training epoch %d: %w", epoch, err)
			}
		}

		// Present samples in a different order in the next epoch.
		r.Shuffle(len(samples), func(i, j int) {
			samples[i], samples[j] = samples[j], samples[i]
		})

		if epoch%c.logEvery == 0 || epoch == c.epochs-1 {
			loss, err := datasetLoss(ws, samples)
			if err != nil {
				return fmt.Errorf("while evaluating epoch %d: %w", epoch, err)
			}
			log.Printf("epoch %d squared-error=%f", epoch, loss)
			log.Printf("epoch %d timings overall=%.3f forward=%.3f backprop=%.3f weightupdate=%.3f",
				epoch,
				timings.Overall.Seconds(),
				timings.Forward.Seconds(),
				timings.Backpropagation.Seconds(),
				timings.WeightUpdate.Seconds(),
			)
			timings.Reset()
		}
	}

	if err := toolbox.Save(ws, c.weightsName); err != nil {
		return fmt.Errorf("while saving weights: %w", err)
	}
	return nil
}

func datasetLoss(ws *toolbox.WeightStack, samples []toolbox.Sample) (float32, error) {
	loss := float32(0)
	for _, s := range samples {
		out, err := ws.Forward(s.Input)
		if err != nil {
			return 0, err
		}
		loss += toolbox.SquaredError(out, s.Target) / float32(len(samples))
	}
	return loss, nil
}

type InferCommand struct {
	weightsName string
	input       floatList
}

var _ subcommands.Command = (*InferCommand)(nil)

func (*InferCommand) Name() string {
	return "infer"
}

func (*InferCommand) Synopsis() string {
	return "Run the forward pass for one input"
}

func (*InferCommand) Usage() string {
	return `infer --weights=NAME --input=0,1
`
}

func (c *InferCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsName, "weights", "", "Weight file name, without the .dat extension")
	f.Var(&c.input, "input", "Comma-separated input values in [0, 1]")
}

func (c *InferCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *InferCommand) executeErr(ctx context.Context) error {
	if err := requireWeights(c.weightsName); err != nil {
		return err
	}

	ws, err := toolbox.Load(c.weightsName)
	if err != nil {
		return fmt.Errorf("while loading weights: %w", err)
	}

	out, err := ws.Forward(c.input)
	if err != nil {
		return fmt.Errorf("while running forward pass: %w", err)
	}

	fmt.Fprintln(stdout, floatList(out).String())
	return nil
}

type ReverseCommand struct {
	weightsName string
	input       floatList
}

var _ subcommands.Command = (*ReverseCommand)(nil)

func (*ReverseCommand) Name() string {
	return "reverse"
}

func (*ReverseCommand) Synopsis() string {
	return "Run an output-sized signal backwards through the network"
}

func (*ReverseCommand) Usage() string {
	return `reverse --weights=NAME --input=0.2,0.9

Only stacks created without --bias support the reverse pass.
`
}

func (c *ReverseCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsName, "weights", "", "Weight file name, without the .dat extension")
	f.Var(&c.input, "input", "Comma-separated values, one per output neuron")
}

func (c *ReverseCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ReverseCommand) executeErr(ctx context.Context) error {
	if err := requireWeights(c.weightsName); err != nil {
		return err
	}

	ws, err := toolbox.Load(c.weightsName)
	if err != nil {
		return fmt.Errorf("while loading weights: %w", err)
	}

	out, err := ws.Reverse(c.input)
	if err != nil {
		return fmt.Errorf("while running reverse pass: %w", err)
	}

	fmt.Fprintln(stdout, floatList(out).String())
	return nil
}

type ExportCommand struct {
	weightsName string
	npzFile     string
}

var _ subcommands.Command = (*ExportCommand)(nil)

func (*ExportCommand) Name() string {
	return "export"
}

func (*ExportCommand) Synopsis() string {
	return "Write a weight stack as a NumPy npz archive"
}

func (*ExportCommand) Usage() string {
	return `export --weights=NAME --npz=FILE.npz
`
}

func (c *ExportCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.weightsName, "weights", "", "Weight file name, without the .dat extension")
	f.StringVar(&c.npzFile, "npz", "", "Path of the npz archive to write")
}

func (c *ExportCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ExportCommand) executeErr(ctx context.Context) error {
	if err := requireWeights(c.weightsName); err != nil {
		return err
	}

	ws, err := toolbox.Load(c.weightsName)
	if err != nil {
		return fmt.Errorf("while loading weights: %w", err)
	}

	if err := toolbox.ExportNPZ(ws, c.npzFile); err != nil {
		return fmt.Errorf("while exporting weights: %w", err)
	}
	return nil
}

type ImportCommand struct {
	npzFile     string
	weightsName string
}

var _ subcommands.Command = (*ImportCommand)(nil)

func (*ImportCommand) Name() string {
	return "import"
}

func (*ImportCommand) Synopsis() string {
	return "Read a weight stack from a NumPy npz archive"
}

func (*ImportCommand) Usage() string {
	return `import --npz=FILE.npz --weights=NAME
`
}

func (c *ImportCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.npzFile, "npz", "", "Path of the npz archive to read")
	f.StringVar(&c.weightsName, "weights", "", "Weight file name to write, without the .dat extension")
}

func (c *ImportCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := c.executeErr(ctx); err != nil {
		log.Printf("Error: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ImportCommand) executeErr(ctx context.Context) error {
	if err := requireWeights(c.weightsName); err != nil {
		return err
	}

	ws, err := toolbox.ImportNPZ(c.npzFile)
	if err != nil {
		return fmt.Errorf("while importing weights: %w", err)
	}

	if err := toolbox.Save(ws, c.weightsName); err != nil {
		return fmt.Errorf("while saving weights: %w", err)
	}

	log.Printf("Imported weight stack sizes=%v bias=%v", ws.Sizes(), ws.Bias)
	return nil
}
