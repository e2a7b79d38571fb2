// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package disk implements the namespaced blob store backing parcel, cargo
// and key material storage. Names never escape their namespace directory.
package disk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Well-known namespaces.
const (
	NamespaceParcel   = "parcel"
	NamespaceCargo    = "cargo"
	NamespaceKeystore = "keystore"
)

// Store keeps each namespace as a directory under root.
type Store struct {
	root string
}

// New creates the store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating blob store root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Store writes data under the given name, replacing any previous content.
func (s *Store) Store(namespace, name string, data []byte) error {
	path, err := s.entryPath(namespace, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// StoreUnique writes data under a fresh name starting with prefix and
// returns the name.
func (s *Store) StoreUnique(namespace, prefix string, data []byte) (string, error) {
	name := prefix + uuid.NewString()
	if err := s.Store(namespace, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// Read returns the stored bytes, or an error wrapping os.ErrNotExist.
func (s *Store) Read(namespace, name string) ([]byte, error) {
	path, err := s.entryPath(namespace, name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// List returns the entry names of a namespace in lexical order. A missing
// namespace lists as empty.
func (s *Store) List(namespace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, namespace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes one entry. Removing a missing entry is a no-op.
func (s *Store) Delete(namespace, name string) error {
	path, err := s.entryPath(namespace, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DeleteAll empties a namespace.
func (s *Store) DeleteAll(namespace string) error {
	err := os.RemoveAll(filepath.Join(s.root, namespace))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) entryPath(namespace, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	if namespace == "" || strings.ContainsAny(namespace, "/\\") {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	return filepath.Join(s.root, namespace, name), nil
}
