package models

import (
	"fmt"
	"strings"
)

// Courses is the fixed enumeration students can enrol in.
var Courses = []string{
	"Computer Science",
	"Mathematics",
	"Physics",
	"Biology",
	"Chemistry",
	"History",
	"Literature",
}

func IsCourse(name string) bool {
	for _, c := range Courses {
		if c == name {
			return true
		}
	}
	return false
}

// ParseCourses reads a comma separated list, matching names case
// insensitively and returning the canonical spelling without duplicates.
func ParseCourses(input string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		match := ""
		for _, c := range Courses {
			if strings.EqualFold(c, part) {
				match = c
				break
			}
		}
		if match == "" {
			return nil, fmt.Errorf("unknown course %q", part)
		}
		if !seen[match] {
			seen[match] = true
			out = append(out, match)
		}
	}
	return out, nil
}
