package llm

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// DefaultSimulatedDelay matches the pause of a typical hosted model call.
const DefaultSimulatedDelay = 2 * time.Second

// Simulator is an Invoker that waits a fixed delay and returns canned text
// naming the model and temperature.
type Simulator struct {
	Delay time.Duration
}

func NewSimulator(delay time.Duration) *Simulator {
	return &Simulator{Delay: delay}
}

// Invoke validates inv, waits for the delay or ctx, and returns SimulatedResponse.
func (s *Simulator) Invoke(ctx context.Context, inv Invocation) (*Response, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return &Response{
		Content: SimulatedResponse(inv.Model, inv.Temperature),
		Model:   inv.Model,
	}, nil
}

// SimulatedResponse renders the canned simulator text.
func SimulatedResponse(model string, temperature float64) string {
	return fmt.Sprintf(`This is a simulated response from %s. In a real implementation, this would be the actual LLM response based on your prompt and the selected model parameters.

The response would be generated using:
- Model: %s
- Temperature: %s
- Your resolved prompt with all variables filled in.

This demonstrates how your prompt template works with real variable values and gives you a preview of the expected output quality and format.`,
		model, model, strconv.FormatFloat(temperature, 'f', -1, 64))
}

var _ Invoker = (*Simulator)(nil)
