package utils

import (
	"strings"
)

// SplitCSV splits a comma-separated list, trimming entries and dropping empty ones
func SplitCSV(csv string) []string {
	array := strings.Split(csv, ",")
	adjusted := make([]string, 0)
	for _, each := range array {
		trimmed := strings.TrimSpace(each)
		if trimmed != "" {
			adjusted = append(adjusted, trimmed)
		}
	}
	return adjusted
}
