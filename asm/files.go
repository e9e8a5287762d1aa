// Copyright 2014-2024 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by a FileProvider when no file matches the
// requested name.
var ErrNotFound = errors.New("file not found")

// A SourceFile is a file retrieved by a FileProvider.
type SourceFile struct {
	Path  string
	Data  []byte
	Lines []string // nil for binary files
}

// NewSourceFile creates a source file from text, splitting it into
// lines.
func NewSourceFile(path string, data []byte) *SourceFile {
	return &SourceFile{Path: path, Data: data, Lines: splitLines(string(data))}
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// A FileProvider retrieves the files named by INCLUDE and INCBIN. The
// name is resolved relative to the including file first.
type FileProvider interface {
	Retrieve(name, relativeTo string, binary bool) (*SourceFile, error)
}

// A DirProvider retrieves files from the operating system's file system,
// searching the directory of the including file and then each include
// path.
type DirProvider struct {
	IncludePaths []string
}

// Retrieve reads the named file.
func (p *DirProvider) Retrieve(name, relativeTo string, binary bool) (*SourceFile, error) {
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		candidates = []string{filepath.Join(filepath.Dir(relativeTo), name)}
		for _, dir := range p.IncludePaths {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		candidates = append(candidates, name)
	}

	for _, c := range candidates {
		data, err := os.ReadFile(c)
		switch {
		case err == nil && binary:
			return &SourceFile{Path: c, Data: data}, nil
		case err == nil:
			return NewSourceFile(c, data), nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// A MapProvider retrieves files from memory. Keys are slash-separated
// paths.
type MapProvider map[string]string

// Retrieve returns the named file.
func (p MapProvider) Retrieve(name, relativeTo string, binary bool) (*SourceFile, error) {
	for _, c := range []string{path.Join(path.Dir(relativeTo), name), name} {
		if text, ok := p[c]; ok {
			if binary {
				return &SourceFile{Path: c, Data: []byte(text)}, nil
			}
			return NewSourceFile(c, []byte(text)), nil
		}
	}
	return nil, ErrNotFound
}
