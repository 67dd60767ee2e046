package shell

import (
	"math"
	"testing"
)

func TestRecallLimit(t *testing.T) {
	t.Parallel()

	scenarios := map[string]struct {
		historySize int
		want        int
	}{
		"Test bounded history":       {historySize: 50, want: 50},
		"Test zero is unbounded":     {historySize: 0, want: math.MaxInt},
		"Test negative is unbounded": {historySize: -1, want: math.MaxInt},
	}

	for scenario, config := range scenarios {
		t.Run(scenario, func(t *testing.T) {
			t.Parallel()

			if got := recallLimit(config.historySize); got != config.want {
				t.Errorf("expected limit: got '%d', want '%d'", got, config.want)
			}
		})
	}
}
