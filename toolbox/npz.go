package toolbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"
)

const npzBiasKey = "bias.npy"

func npzWeightKey(l int) string {
	return fmt.Sprintf("w%d.npy", l)
}

// ExportNPZ writes the stack to a NumPy .npz archive.  Each matrix is stored
// as a float64 array w<i> of shape (rows, cols), and the bias flag as a uint8
// array bias holding 0 or 1.
func ExportNPZ(ws *WeightStack, path string) error {
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("while validating weight stack: %w", err)
	}

	w, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("while creating npz file: %w", err)
	}

	for l, m := range ws.Matrices {
		if err := w.Write(npzWeightKey(l), af32ToDense(m)); err != nil {
			w.Close()
			return fmt.Errorf("while writing %s: %w", npzWeightKey(l), err)
		}
	}

	bias := []uint8{0}
	if ws.Bias {
		bias[0] = 1
	}
	if err := w.Write(npzBiasKey, bias); err != nil {
		w.Close()
		return fmt.Errorf("while writing %s: %w", npzBiasKey, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("while closing npz file: %w", err)
	}
	return nil
}

// ImportNPZ reads a stack from an archive in the layout written by ExportNPZ.
// Values are narrowed to float32.
func ImportNPZ(path string) (*WeightStack, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening npz file: %w", err)
	}
	defer r.Close()

	keys := map[string]bool{}
	for _, k := range r.Keys() {
		if !strings.HasSuffix(k, ".npy") {
			k += ".npy"
		}
		keys[k] = true
	}

	if !keys[npzBiasKey] {
		return nil, fmt.Errorf("%w: npz file has no %s", ErrCorrupt, npzBiasKey)
	}
	var bias []uint8
	if err := r.Read(npzBiasKey, &bias); err != nil {
		return nil, fmt.Errorf("while reading %s: %w", npzBiasKey, err)
	}
	if len(bias) != 1 {
		return nil, fmt.Errorf("%w: %s has %d entries, want 1", ErrCorrupt, npzBiasKey, len(bias))
	}

	layers := 0
	for k := range keys {
		if strings.HasPrefix(k, "w") && strings.HasSuffix(k, ".npy") {
			if _, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(k, "w"), ".npy")); err == nil {
				layers++
			}
		}
	}

	ws := &WeightStack{
		Matrices: make([]*AF32, layers),
		Bias:     bias[0] != 0,
	}
	for l := 0; l < layers; l++ {
		if !keys[npzWeightKey(l)] {
			return nil, fmt.Errorf("%w: npz file has no %s", ErrCorrupt, npzWeightKey(l))
		}
		var m mat.Dense
		if err := r.Read(npzWeightKey(l), &m); err != nil {
			return nil, fmt.Errorf("while reading %s: %w", npzWeightKey(l), err)
		}
		ws.Matrices[l] = denseToAF32(&m)
	}

	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return ws, nil
}

// Sample is one supervised training example.
type Sample struct {
	Input  []float32
	Target []float32
}

// ReadDataset loads training samples from an .npz archive holding two float64
// matrices, x of shape (n, inputSize) and y of shape (n, outputSize).  n,
// inputSize and outputSize must all be at least 1.
func ReadDataset(path string) ([]Sample, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, fmt.Errorf("while opening dataset file: %w", err)
	}
	defer r.Close()

	xRows, xCols, x, err := readMatrix(r, "x.npy")
	if err != nil {
		return nil, fmt.Errorf("while reading x.npy: %w", err)
	}
	yRows, yCols, y, err := readMatrix(r, "y.npy")
	if err != nil {
		return nil, fmt.Errorf("while reading y.npy: %w", err)
	}
	if xRows != yRows {
		return nil, fmt.Errorf("%w: x has %d rows but y has %d", ErrShapeMismatch, xRows, yRows)
	}

	samples := make([]Sample, xRows)
	for k := 0; k < xRows; k++ {
		in := make([]float32, xCols)
		for j := range in {
			in[j] = float32(x[k*xCols+j])
		}
		out := make([]float32, yCols)
		for j := range out {
			out[j] = float32(y[k*yCols+j])
		}
		samples[k] = Sample{Input: in, Target: out}
	}
	return samples, nil
}

// readMatrix reads a non-empty 2D float64 array stored in row-major order.
func readMatrix(r *npz.Reader, name string) (rows, cols int, vals []float64, err error) {
	header := r.Header(name)
	if header == nil {
		return 0, 0, nil, fmt.Errorf("%w: no array named %s", ErrCorrupt, name)
	}
	shape := header.Descr.Shape
	if len(shape) != 2 {
		return 0, 0, nil, fmt.Errorf("%w: array has shape %v, want 2 dimensions", ErrShapeMismatch, shape)
	}
	rows, cols = shape[0], shape[1]
	if rows < 1 || cols < 1 {
		return 0, 0, nil, fmt.Errorf("%w: array has shape %v", ErrShapeMismatch, shape)
	}

	if err := r.Read(name, &vals); err != nil {
		return 0, 0, nil, err
	}
	if len(vals) != rows*cols {
		return 0, 0, nil, fmt.Errorf("%w: array has %d values for shape %v", ErrCorrupt, len(vals), shape)
	}
	return rows, cols, vals, nil
}

// WriteDataset is the inverse of ReadDataset.
func WriteDataset(path string, samples []Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: empty dataset", ErrShapeMismatch)
	}
	inputSize := len(samples[0].Input)
	outputSize := len(samples[0].Target)
	if inputSize == 0 || outputSize == 0 {
		return fmt.Errorf("%w: samples must have non-empty input and target", ErrShapeMismatch)
	}

	x := mat.NewDense(len(samples), inputSize, nil)
	y := mat.NewDense(len(samples), outputSize, nil)
	for k, s := range samples {
		if len(s.Input) != inputSize || len(s.Target) != outputSize {
			return fmt.Errorf("%w: sample %d has shape (%d, %d), want (%d, %d)", ErrShapeMismatch, k, len(s.Input), len(s.Target), inputSize, outputSize)
		}
		for j, v := range s.Input {
			x.Set(k, j, float64(v))
		}
		for j, v := range s.Target {
			y.Set(k, j, float64(v))
		}
	}

	w, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("while creating dataset file: %w", err)
	}
	if err := w.Write("x.npy", x); err != nil {
		w.Close()
		return fmt.Errorf("while writing x.npy: %w", err)
	}
	if err := w.Write("y.npy", y); err != nil {
		w.Close()
		return fmt.Errorf("while writing y.npy: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("while closing dataset file: %w", err)
	}
	return nil
}

func af32ToDense(a *AF32) *mat.Dense {
	d := mat.NewDense(a.Rows(), a.Cols(), nil)
	for i := 0; i < a.Rows(); i++ {
		for j := 0; j < a.Cols(); j++ {
			d.Set(i, j, float64(a.At2(i, j)))
		}
	}
	return d
}

func denseToAF32(d *mat.Dense) *AF32 {
	rows, cols := d.Dims()
	a := MakeAF32(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			a.Set2(i, j, float32(d.At(i, j)))
		}
	}
	return a
}
