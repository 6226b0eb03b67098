/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/batchtran/internal/batch"
	"github.com/valpere/batchtran/internal/reassembler"
	"github.com/valpere/batchtran/internal/tags"
)

var (
	mergeWorkDir string
	mergeOutput  string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Reassemble downloaded batch results into the translated output",
	Long: `Merge the output_*.jsonl files of a finished run back into a single
translated text. Fragments are ordered by their numeric custom_id and the
masked markup is restored from the tag dictionary saved during packing.

Useful to redo the final step by hand, or after downloading results of a
run that was interrupted before reassembly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dict, err := tags.Load(filepath.Join(mergeWorkDir, batch.TagDictFile))
		if err != nil {
			return fmt.Errorf("failed to load tag dictionary: %w", err)
		}

		if err := reassembler.MergeToFile(mergeWorkDir, mergeOutput, dict); err != nil {
			return err
		}

		fmt.Printf("Merged results written to %s\n", mergeOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVar(&mergeWorkDir, "work-dir", "./batch", "Directory holding output_*.jsonl files and the tag dictionary")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "Output file for the merged translation (required)")

	mergeCmd.MarkFlagRequired("output")
}
