package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print memory store counts",
	Long:  `stats opens the store and reports active, vectorized, conflict-flagged and user-pinned memory counts, the vector index size, and the vectorize queue's pending, dead-letter and oldest-entry figures, without starting the daemon.`,
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats() {
	a, err := buildApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	active, err := a.Store.ActiveMemories()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}

	var vectorized, conflicted, pinned int
	for _, m := range active {
		if m.Vectorized {
			vectorized++
		}
		if m.ConflictFlag {
			conflicted++
		}
		if m.UserPinned {
			pinned++
		}
	}

	health := a.VecQueue.HealthCheck()

	fmt.Printf("active memories:     %d\n", len(active))
	fmt.Printf("  vectorized:        %d\n", vectorized)
	fmt.Printf("  conflict-flagged:  %d\n", conflicted)
	fmt.Printf("  user-pinned:       %d\n", pinned)
	fmt.Printf("vector index size:   %d\n", a.VecIndex.Len())
	fmt.Printf("vectorize queue:     pending=%d dead_letter=%d oldest=%s\n",
		health.PendingCount, health.DeadLetterCount, health.OldestEnqueuedAge)
}
