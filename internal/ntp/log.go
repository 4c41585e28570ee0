package ntp

import (
	"fmt"
	"os"
)

// Info and Debug are package-level loggers gated by environment
// variables, matching the rest of this codebase's ad hoc operational
// trace: set INFO=1 for round-level narration, DEBUG=1 for per-packet
// detail. A real library would accept an injected logger; this one
// follows the codebase's existing convention instead of introducing one.
func Info(args ...any) {
	if os.Getenv("INFO") == "1" {
		fmt.Println(args...)
	}
}

func Debug(args ...any) {
	if os.Getenv("DEBUG") == "1" {
		fmt.Println(args...)
	}
}
