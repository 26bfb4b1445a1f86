package utility

import "strings"

func Contains(array []string, s string) bool {
	for _, v := range array {
		if v == s {
			return true
		}
	}
	return false
}

// Unique trims the values and drops empty and repeated ones, keeping the order
func Unique(array []string) []string {
	result := make([]string, 0, len(array))
	for _, v := range array {
		v = strings.TrimSpace(v)
		if v == "" || Contains(result, v) {
			continue
		}
		result = append(result, v)
	}
	return result
}
