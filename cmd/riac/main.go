// Command riac explores a synthetic goal space with a competence-progress
// interest model, records runs in SQLite and replays them.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
