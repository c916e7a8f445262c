// Command memoryd runs the memory core: a companion-facing daemon that
// accepts interactions through UnifiedContextManager and persists, recalls,
// and scores memories behind the scenes. Cobra command layout grounded in
// killallgit-ryan/cmd/root.go: one rootCmd with persistent flags bound
// through viper, one file per subcommand, each registering itself in init.
package main

import "github.com/aimate/memorycore/cmd/memoryd/cmd"

func main() {
	cmd.Execute()
}
