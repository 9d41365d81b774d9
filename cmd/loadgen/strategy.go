package main

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

// Strategy produces the actions of one simulated player. The first actions
// set a name and color and draw an outline; after that the player walks a
// circle, re-extrudes and occasionally redraws.
type Strategy struct {
	rng     *rand.Rand
	index   int
	step    int
	radius  float64
	invalid float64 // share of deliberately invalid actions
}

// NewStrategy creates a strategy for the index-th client. The same seed and
// index always produce the same actions.
func NewStrategy(seed int64, index int, invalid float64) *Strategy {
	return &Strategy{
		rng:     rand.New(rand.NewSource(seed + int64(index))),
		index:   index,
		radius:  5 + float64(index%10),
		invalid: invalid,
	}
}

// Next returns the next action.
func (s *Strategy) Next() engine.Action {
	defer func() { s.step++ }()

	switch s.step {
	case 0:
		return engine.SetName{Name: fmt.Sprintf("Bot %d", s.index)}
	case 1:
		return engine.SetColor{Color: fmt.Sprintf("#%06x", s.rng.Intn(1<<24))}
	case 2:
		return engine.Draw{Points: s.polygon(3 + s.rng.Intn(6))}
	}

	if s.invalid > 0 && s.rng.Float64() < s.invalid {
		return s.invalidAction()
	}

	switch r := s.rng.Intn(10); {
	case r < 6:
		angle := float64(s.step) * math.Pi / 16
		return engine.Move{
			X: math.Round(s.radius*math.Cos(angle)*100) / 100,
			Y: 0,
			Z: math.Round(s.radius*math.Sin(angle)*100) / 100,
		}
	case r < 8:
		return engine.Extrude{Height: math.Round((engine.MinHeight+s.rng.Float64()*(engine.MaxHeight-engine.MinHeight))*10) / 10}
	case r < 9:
		return engine.Draw{Points: s.polygon(3 + s.rng.Intn(6))}
	default:
		return engine.ClearScene{}
	}
}

// polygon returns a regular n-gon as flattened x,z pairs.
func (s *Strategy) polygon(n int) []float64 {
	size := 0.5 + s.rng.Float64()*2
	points := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		points = append(points,
			math.Round(size*math.Cos(angle)*100)/100,
			math.Round(size*math.Sin(angle)*100)/100,
		)
	}
	return points
}

// invalidAction returns an action the server must reject.
func (s *Strategy) invalidAction() engine.Action {
	switch s.rng.Intn(3) {
	case 0:
		return engine.SetColor{Color: "blue"}
	case 1:
		return engine.Draw{Points: []float64{0, 0}}
	default:
		return engine.Move{X: engine.MaxCoordinate * 2}
	}
}
