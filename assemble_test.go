// Copyright 2018-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAsmWritesCleanModules(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.asm")
	bad := filepath.Join(dir, "bad.asm")
	if err := os.WriteFile(good, []byte("SECTION \"a\", ROM0\n\tnop\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("SECTION \"b\", ROM0\n\tFAIL \"broken\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	asmFlags.output = ""
	if err := runAsm(asmCmd, []string{bad, good}); err == nil {
		t.Error("expected assembly to fail")
	}

	if _, err := os.Stat(filepath.Join(dir, "good.o")); err != nil {
		t.Errorf("good.o not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.o")); err == nil {
		t.Error("bad.o written despite errors")
	}
}
