package plugins

import (
	"fmt"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Inspection is the offline verification result of one package
type Inspection struct {
	Path        string    `json:"path"`
	Manifest    *Manifest `json:"manifest,omitempty"`
	Types       []string  `json:"types,omitempty"`
	Valid       bool      `json:"valid"`
	Error       string    `json:"error,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	InspectedAt time.Time `json:"inspected_at"`
}

type inspectKey struct {
	path    string
	size    int64
	modTime time.Time
}

// Inspector builds packages in throwaway boundaries to report whether they would
// load, without registering or initializing anything. Results are cached per
// path, size and modification time.
type Inspector struct {
	host  Namespace
	cache *lru.LRU[inspectKey, *Inspection]
}

// NewInspector creates an inspector holding at most size results for ttl
func NewInspector(host Namespace, size int, ttl time.Duration) *Inspector {
	if size < 1 {
		size = 128
	}
	return &Inspector{
		host:  host,
		cache: lru.NewLRU[inspectKey, *Inspection](size, nil, ttl),
	}
}

// Inspect verifies the package at path. The returned error is only set when
// the file itself cannot be read; load failures are reported in the Inspection.
func (i *Inspector) Inspect(path string) (*Inspection, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}

	key := inspectKey{path: path, size: info.Size(), modTime: info.ModTime()}
	if cached, ok := i.cache.Get(key); ok {
		return cached, nil
	}

	result := &Inspection{
		Path:        path,
		InspectedAt: time.Now().UTC(),
	}

	unit, err := NewUnit(path, i.host)
	if err != nil {
		result.Error = err.Error()
		result.Reason = skipReason(err)
		if fsys, openErr := OpenPackage(path); openErr == nil {
			if manifest, mErr := LoadManifest(fsys); mErr == nil {
				result.Manifest = manifest
			}
		}
	} else {
		result.Valid = true
		result.Manifest = unit.Manifest()
		result.Types = unit.Boundary().Defined()
	}

	i.cache.Add(key, result)
	return result, nil
}

// Len returns the number of cached results
func (i *Inspector) Len() int {
	return i.cache.Len()
}

// Purge drops every cached result
func (i *Inspector) Purge() {
	i.cache.Purge()
}
