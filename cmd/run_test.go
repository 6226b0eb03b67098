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
	"path/filepath"
	"testing"

	"github.com/valpere/batchtran/internal/store"
)

func TestSetRunStatus_UpdatesJournal(t *testing.T) {
	ctx := context.Background()
	db, err := store.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	if err := db.SaveRun(ctx, store.Run{ID: "run-1", InputFile: "in.csv", TargetLang: "uk", Model: "gpt-4o"}); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	setRunStatus(ctx, db, "run-1", "completed")

	got, found, err := db.GetRun(ctx, "run-1")
	if err != nil || !found {
		t.Fatalf("GetRun failed: found=%v err=%v", found, err)
	}
	if got.Status != "completed" {
		t.Errorf("expected status completed, got %q", got.Status)
	}
}

func TestSetRunStatus_NilStoreIsNoOp(t *testing.T) {
	// run without a journal configured
	setRunStatus(context.Background(), nil, "run-1", "completed")
}

func TestSetRunStatus_WriteFailureIsReportedNotFatal(t *testing.T) {
	ctx := context.Background()
	db, err := store.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	db.Close()

	// The journal write fails against the closed store; the helper must
	// swallow it after reporting instead of propagating or panicking.
	setRunStatus(ctx, db, "run-1", "interrupted")
}
