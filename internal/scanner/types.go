package scanner

import "time"

// Directory is one scan target as handed over by configuration.
type Directory struct {
	Path            string
	Name            string
	Recursive       bool
	IncludePatterns []string
	IncludeDirs     []string
}

// File is the metadata captured for one matching file during a single pass.
type File struct {
	Path    string
	RelPath string
	Name    string
	ModTime time.Time
	Size    int64
}

// FileAge is the per-file entry of a Result.
type FileAge struct {
	Name    string
	RelPath string
	Age     float64
	Size    int64
}

// Result is the outcome of scanning one directory in one cycle.
//
// When Count is zero OldestAge and NewestAge are zero as well, which
// distinguishes "no files" from "a very fresh file". A failed scan (Err != nil)
// always carries the all-zero aggregates and no files.
type Result struct {
	Name      string
	Path      string
	Count     int
	TotalSize int64
	OldestAge float64
	NewestAge float64
	Files     []FileAge
	ScannedAt time.Time
	Duration  time.Duration
	Warnings  int
	Err       error
}

// Failed reports whether the directory could not be scanned at all.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Aggregate reduces files to a Result using a single reference time so that
// every age in the result is measured against the same instant. Modification
// times in the future count as age zero.
func Aggregate(name string, files []File, now time.Time) Result {
	res := Result{
		Name:      name,
		ScannedAt: now,
		Files:     make([]FileAge, 0, len(files)),
	}
	for i, f := range files {
		age := now.Sub(f.ModTime).Seconds()
		if age < 0 {
			age = 0
		}
		res.Files = append(res.Files, FileAge{Name: f.Name, RelPath: f.RelPath, Age: age, Size: f.Size})
		res.TotalSize += f.Size
		if i == 0 || age > res.OldestAge {
			res.OldestAge = age
		}
		if i == 0 || age < res.NewestAge {
			res.NewestAge = age
		}
	}
	res.Count = len(files)
	return res
}

func failedResult(dir Directory, now time.Time, err error) Result {
	return Result{
		Name:      dir.Name,
		Path:      dir.Path,
		ScannedAt: now,
		Files:     []FileAge{},
		Err:       err,
	}
}
