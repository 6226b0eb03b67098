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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valpere/batchtran/internal/openai"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List batch jobs and their states",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}

		batches, err := client.ListBatches(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list batches: %w", err)
		}
		if len(batches) == 0 {
			fmt.Println("No batches found")
			return nil
		}

		active := 0
		for _, b := range batches {
			marker := " "
			if openai.IsActiveStatus(b.Status) {
				marker = "*"
				active++
			}
			fmt.Printf("%s %-40s %s\n", marker, b.ID, b.Status)
		}
		fmt.Printf("%d batches, %d active\n", len(batches), active)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
