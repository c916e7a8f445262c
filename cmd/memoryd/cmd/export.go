package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aimate/memorycore/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump memories as JSONL",
	Long:  `export writes every active memory to a JSONL file, one Memory per line.`,
	Run: func(cmd *cobra.Command, args []string) {
		runExport()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "memories.jsonl", "output file path")
	rootCmd.AddCommand(exportCmd)
}

// exportRecord is export's on-disk shape: a flattened, stable view of
// store.Memory that doesn't change if internal field names do.
type exportRecord struct {
	ID           string         `json:"id"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	Content      string         `json:"content"`
	Kind         string         `json:"kind"`
	Importance   float64        `json:"importance"`
	DecayFactor  float64        `json:"decay_factor"`
	EmotionTag   string         `json:"emotion_tag,omitempty"`
	ConflictFlag bool           `json:"conflict_flag"`
	UserPinned   bool           `json:"user_pinned"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func toExportRecord(m *store.Memory) exportRecord {
	return exportRecord{
		ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt, Content: m.Content,
		Kind: string(m.Kind), Importance: m.Importance, DecayFactor: m.DecayFactor,
		EmotionTag: m.EmotionTag, ConflictFlag: m.ConflictFlag, UserPinned: m.UserPinned,
		Metadata: m.Metadata,
	}
}

func runExport() {
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

	f, err := os.Create(exportOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoryd: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	count := 0
	for _, m := range active {
		if err := enc.Encode(toExportRecord(m)); err != nil {
			fmt.Fprintf(os.Stderr, "memoryd: encode %s: %v\n", m.ID, err)
			continue
		}
		count++
	}

	fmt.Printf("exported %d memories to %s\n", count, exportOut)
}
