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

	"github.com/spf13/cobra"

	"github.com/valpere/batchtran/internal/batch"
)

var (
	packInput      string
	packOutputDir  string
	packTargetLang string
	packModel      string
	packChunkSize  int
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Mask, chunk and pack a corpus into batch request files",
	Long: `Read a text corpus, mask its markup behind {{tag_N}} placeholders,
split the masked text into token-bounded chunks, and pack the chunks into
JSONL batch request files ready for upload.

The tag dictionary needed to restore the markup is written to the output
directory alongside the request files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := packCorpus(packInput, packOutputDir, packTargetLang, packModel, packChunkSize)
		if err != nil {
			return err
		}

		fmt.Printf("Packed %d requests into %d files under %s\n", result.Requests, len(result.Files), packOutputDir)
		for _, f := range result.Files {
			fmt.Printf("  %s\n", f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(packCmd)

	packCmd.Flags().StringVarP(&packInput, "input", "i", "", "Input file to translate (required)")
	packCmd.Flags().StringVarP(&packOutputDir, "output-dir", "o", "./batch", "Directory for batch request files")
	packCmd.Flags().StringVarP(&packTargetLang, "target", "t", "", "Target language code or name (required)")
	packCmd.Flags().StringVar(&packModel, "model", batch.DefaultModel, "Model to request")
	packCmd.Flags().IntVar(&packChunkSize, "chunk-tokens", 950, "Token budget per request, including system prompt and overhead")

	packCmd.MarkFlagRequired("input")
	packCmd.MarkFlagRequired("target")
}
