// Command xor trains a small weight stack with bias units on the XOR truth
// table and reports how well it learned it.
package main

import (
	"flag"
	"log"
	"math/rand"

	"github.com/ahmedtd/neurobiba/toolbox"
)

func main() {
	var (
		steps    = flag.Int("steps", 20000, "Number of passes over the truth table")
		alpha    = flag.Float64("alpha", float64(toolbox.DefaultAlpha), "Learning rate")
		hidden   = flag.Int("hidden", 3, "Number of hidden neurons")
		seed     = flag.Int64("seed", 12345, "Random seed for the initial weights")
		saveName = flag.String("save", "", "If set, save the trained weights to <save>.dat")
	)
	flag.Parse()

	samples := []toolbox.Sample{
		{Input: []float32{0, 0}, Target: []float32{0}},
		{Input: []float32{0, 1}, Target: []float32{1}},
		{Input: []float32{1, 0}, Target: []float32{1}},
		{Input: []float32{1, 1}, Target: []float32{0}},
	}

	r := rand.New(rand.NewSource(*seed))
	ws, err := toolbox.NewWeightStack([]int{2, *hidden, 1}, true, r)
	if err != nil {
		log.Fatalf("Error: while creating weight stack: %v", err)
	}

	for i := 0; i < *steps; i++ {
		for _, s := range samples {
			if err := ws.Train(s.Input, s.Target, float32(*alpha)); err != nil {
				log.Fatalf("Error: while training: %v", err)
			}
		}

		if i%1000 == 0 {
			log.Printf("step=%v loss=%v", i, loss(ws, samples))
		}
	}

	numMispredictions := 0
	for _, s := range samples {
		out, err := ws.Forward(s.Input)
		if err != nil {
			log.Fatalf("Error: while running forward pass: %v", err)
		}

		prediction := float32(0.0)
		if out[0] > 0.5 {
			prediction = 1.0
		}
		if prediction != s.Target[0] {
			numMispredictions++
		}
		log.Printf("input=%v output=%v target=%v", s.Input, out[0], s.Target[0])
	}
	log.Printf("had %d mispredictions out of %d", numMispredictions, len(samples))

	if *saveName != "" {
		if err := toolbox.Save(ws, *saveName); err != nil {
			log.Fatalf("Error: while saving weights: %v", err)
		}
		log.Printf("saved weights to %s.dat", *saveName)
	}
}

func loss(ws *toolbox.WeightStack, samples []toolbox.Sample) float32 {
	total := float32(0)
	for _, s := range samples {
		out, err := ws.Forward(s.Input)
		if err != nil {
			log.Fatalf("Error: while running forward pass: %v", err)
		}
		total += toolbox.SquaredError(out, s.Target)
	}
	return total / float32(len(samples))
}
