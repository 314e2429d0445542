package registry

import "time"

// Record is one registry row: an original copy or a derived artifact.
// FullPath is the primary key; merging keeps the latest row per path.
type Record struct {
	Filename         string // base name of the artifact
	Filepath         string // path relative to the output root (set/variant/name)
	OriginalFilename string // base name of the originating source file
	AugmentationType string // transform kind, or "original" for copies
	SetName          string
	CardNumber       string
	Variant          string
	FullPath         string // absolute output path, unique per artifact
	RunID            string
	CreatedAt        time.Time
}

// Stats summarizes the registry contents for the stats command.
type Stats struct {
	Total     int
	Originals int
	Derived   int
	PerSet    map[string]int
	PerKind   map[string]int
	Cards     int // distinct (set, number, variant) identities
}
