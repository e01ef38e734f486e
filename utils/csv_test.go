package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		csv  string
		want []string
	}{
		{csv: "default,kube-system,apps", want: []string{"default", "kube-system", "apps"}},
		{csv: "a, ,c ", want: []string{"a", "c"}},
		{csv: "  ,   ,, ", want: []string{}},
		{csv: "", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.csv, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCSV(tt.csv))
		})
	}
}
